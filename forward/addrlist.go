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
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var addrMatcher = regexp.MustCompile(`^(.+):([0-9]{1,5})$`)

// ParseAddrList splits a comma-separated "host:port,host:port" string into
// its candidate addresses, validating each one's port. The proxy side uses
// this for its relay candidate list (DialAny tries them in order); the
// relay side uses it for its upstream target.
func ParseAddrList(s string) ([]string, error) {
	parts := strings.Split(s, ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		addr := strings.TrimSpace(p)
		if addr == "" {
			return nil, errors.Errorf("empty address in list %q", s)
		}
		matches := addrMatcher.FindStringSubmatch(addr)
		if matches == nil {
			return nil, errors.Errorf("malformed address: %q", addr)
		}
		port, err := strconv.Atoi(matches[2])
		if err != nil || port == 0 || port > 65535 {
			return nil, errors.Errorf("invalid port in address: %q", addr)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}
