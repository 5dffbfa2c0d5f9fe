package forward

import (
	"os"
	"sync/atomic"

	"github.com/pkg/errors"
)

// stagingPipe is the Go binding of the spec's "pipe_out"/"pipe_in":
// one OS pipe used as a zero-copy staging buffer between a socket and
// the scheduler/reassembler. n tracks resident bytes for the
// backpressure thresholds (spec invariant 4: 0 <= n <= capacity).
type stagingPipe struct {
	r, w *os.File
	n    int64
}

func newStagingPipe() (*stagingPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "staging pipe")
	}
	return &stagingPipe{r: r, w: w}, nil
}

func (p *stagingPipe) Close() {
	if p.r != nil {
		p.r.Close()
	}
	if p.w != nil {
		p.w.Close()
	}
}

func (p *stagingPipe) occupancy() int64 { return atomic.LoadInt64(&p.n) }
func (p *stagingPipe) add(n int64)      { atomic.AddInt64(&p.n, n) }
func (p *stagingPipe) sub(n int64)      { atomic.AddInt64(&p.n, -n) }

func (p *stagingPipe) full() bool  { return p.occupancy() >= HighWater }
func (p *stagingPipe) empty() bool { return p.occupancy() <= 0 }
