package forward

import "testing"

func TestStagingPipeThresholds(t *testing.T) {
	p, err := newStagingPipe()
	if err != nil {
		t.Fatalf("newStagingPipe: %v", err)
	}
	defer p.Close()

	if !p.empty() {
		t.Fatal("new pipe should report empty")
	}
	if p.full() {
		t.Fatal("new pipe should not report full")
	}

	p.add(HighWater)
	if !p.full() {
		t.Fatal("pipe at HighWater should report full")
	}
	if p.empty() {
		t.Fatal("pipe at HighWater should not report empty")
	}

	p.sub(HighWater)
	if !p.empty() {
		t.Fatal("pipe drained back to zero should report empty")
	}
}

func TestStagingPipeOccupancyTracksAddSub(t *testing.T) {
	p, err := newStagingPipe()
	if err != nil {
		t.Fatalf("newStagingPipe: %v", err)
	}
	defer p.Close()

	p.add(100)
	p.add(50)
	p.sub(30)
	if got := p.occupancy(); got != 120 {
		t.Fatalf("occupancy = %d, want 120", got)
	}
}
