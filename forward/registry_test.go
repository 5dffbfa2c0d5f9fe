package forward

import (
	"testing"
)

func TestRegistryAllocateSkipsCollisions(t *testing.T) {
	reg := NewRegistry()
	taken := &Session{GroupID: 1, closed: make(chan struct{})}
	reg.Add(taken)
	s1 := &Session{closed: make(chan struct{})}
	s2 := &Session{closed: make(chan struct{})}

	id1 := reg.Allocate(s1)
	id2 := reg.Allocate(s2)
	if id1 == 0 || id2 == 0 {
		t.Fatalf("allocated ids must be nonzero: %d, %d", id1, id2)
	}
	if id1 == 1 || id2 == 1 {
		t.Fatalf("Allocate handed out id 1, which was already taken: %d, %d", id1, id2)
	}
	if got := reg.Lookup(1); got != taken {
		t.Fatalf("Lookup(1) returned %v, want the pre-registered session", got)
	}
	if id1 == id2 {
		t.Fatalf("allocated ids must be distinct: %d == %d", id1, id2)
	}
	if got := reg.Lookup(id1); got != s1 {
		t.Fatalf("Lookup(%d) returned %v, want s1", id1, got)
	}
	if got := reg.Lookup(id2); got != s2 {
		t.Fatalf("Lookup(%d) returned %v, want s2", id2, got)
	}
}

func TestRegistryRemoveFreesID(t *testing.T) {
	reg := NewRegistry()
	s := &Session{closed: make(chan struct{})}
	id := reg.Allocate(s)

	reg.Remove(s)
	if got := reg.Lookup(id); got != nil {
		t.Fatalf("Lookup(%d) after Remove = %v, want nil", id, got)
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	reg := NewRegistry()
	if got := reg.Lookup(12345); got != nil {
		t.Fatalf("Lookup of unknown id = %v, want nil", got)
	}
}

func TestRegistryTotalsSumsSessions(t *testing.T) {
	reg := NewRegistry()
	s1 := &Session{closed: make(chan struct{})}
	s2 := &Session{closed: make(chan struct{})}
	reg.Allocate(s1)
	reg.Allocate(s2)
	s1.statsIn, s1.statsOut = 100, 200
	s2.statsIn, s2.statsOut = 50, 75

	sessions, in, out := reg.Totals()
	if sessions != 2 {
		t.Fatalf("Totals sessions = %d, want 2", sessions)
	}
	if in != 150 || out != 275 {
		t.Fatalf("Totals bytes = (%d, %d), want (150, 275)", in, out)
	}
}
