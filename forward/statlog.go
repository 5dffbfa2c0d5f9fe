// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package forward

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// StatLogger periodically appends a CSV snapshot of this registry's
// aggregate byte counters to path, rotating the filename through
// time.Format the way the teacher's kcp.DefaultSnmp dump in std/snmp.go
// does; generalized here from KCP's global SNMP block to this package's
// per-session atomic counters via Registry.Totals. A path of "" or a
// zero interval disables logging.
func (r *Registry) StatLogger(path string, interval time.Duration) {
	if path == "" || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		logdir, logfile := filepath.Split(path)
		f, err := os.OpenFile(logdir+time.Now().Format(logfile), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
		if err != nil {
			log.Println(err)
			return
		}

		sessions, bytesIn, bytesOut := r.Totals()
		w := csv.NewWriter(f)
		if stat, err := f.Stat(); err == nil && stat.Size() == 0 {
			if err := w.Write([]string{"Unix", "Sessions", "BytesIn", "BytesOut"}); err != nil {
				log.Println(err)
			}
		}
		if err := w.Write([]string{
			fmt.Sprint(time.Now().Unix()),
			fmt.Sprint(sessions),
			fmt.Sprint(bytesIn),
			fmt.Sprint(bytesOut),
		}); err != nil {
			log.Println(err)
		}
		w.Flush()
		f.Close()
	}
}
