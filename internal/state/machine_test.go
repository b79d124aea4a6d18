package state

import (
	"errors"
	"sync"
	"testing"
)

func TestSessionLifecycle(t *testing.T) {
	var transitions []string
	s := NewSession("VIN1", func(vin, from, to string) {
		transitions = append(transitions, from+">"+to)
	})
	if s.CurrentState() != StateIdle {
		t.Fatalf("initial state = %s", s.CurrentState())
	}

	tk := s.Begin()
	if s.CurrentState() != StateLoading {
		t.Fatalf("after Begin = %s", s.CurrentState())
	}
	if err := s.Accept(tk, false); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if s.CurrentState() != StateReady {
		t.Errorf("after Accept = %s", s.CurrentState())
	}

	tk = s.Begin()
	if err := s.Accept(tk, true); err != nil {
		t.Fatalf("Accept empty: %v", err)
	}
	if s.CurrentState() != StateNoMatch {
		t.Errorf("after empty Accept = %s", s.CurrentState())
	}

	want := []string{"idle>loading", "loading>ready", "ready>loading", "loading>no_match"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestSupersededTicketIsStale(t *testing.T) {
	s := NewSession("VIN1", nil)

	first := s.Begin()
	second := s.Begin()
	if s.CurrentState() != StateLoading {
		t.Fatalf("state = %s", s.CurrentState())
	}

	if err := s.Accept(first, false); !errors.Is(err, ErrStaleView) {
		t.Fatalf("late result err = %v, want ErrStaleView", err)
	}
	if s.CurrentState() != StateLoading {
		t.Errorf("stale result changed state to %s", s.CurrentState())
	}
	if s.IsCurrent(first) || !s.IsCurrent(second) {
		t.Error("IsCurrent mismatch")
	}
	if err := s.Accept(second, false); err != nil {
		t.Fatalf("current result: %v", err)
	}
	if got := s.GetState().Generation; got != second.Generation {
		t.Errorf("generation = %d, want %d", got, second.Generation)
	}
}

func TestFailAndReset(t *testing.T) {
	s := NewSession("VIN1", nil)

	stale := s.Begin()
	current := s.Begin()
	s.Fail(stale)
	if s.CurrentState() != StateLoading {
		t.Errorf("stale failure changed state to %s", s.CurrentState())
	}
	s.Fail(current)
	if s.CurrentState() != StateIdle {
		t.Errorf("after Fail = %s", s.CurrentState())
	}

	tk := s.Begin()
	s.Reset()
	if s.CurrentState() != StateIdle {
		t.Errorf("after Reset = %s", s.CurrentState())
	}
	if err := s.Accept(tk, false); !errors.Is(err, ErrStaleView) {
		t.Errorf("result after reset err = %v, want ErrStaleView", err)
	}
}

func TestManagerPartitionsByVIN(t *testing.T) {
	m := NewManager(nil)
	a := m.GetOrCreate("A")
	if m.GetOrCreate("A") != a {
		t.Error("GetOrCreate should return the same session")
	}
	b := m.GetOrCreate("B")

	a.Begin()
	a.Begin()
	tk := b.Begin()
	if tk.Generation != 1 {
		t.Errorf("generation of B = %d, want 1", tk.Generation)
	}
	if _, ok := m.Get("C"); ok {
		t.Error("unexpected session C")
	}
	states := m.GetAllStates()
	if len(states) != 2 || states["A"].Generation != 2 {
		t.Errorf("states = %+v", states)
	}
}

func TestConcurrentBeginKeepsLastTicketCurrent(t *testing.T) {
	s := NewSession("VIN1", nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Begin()
		}()
	}
	wg.Wait()

	if got := s.GetState().Generation; got != 50 {
		t.Errorf("generation = %d, want 50", got)
	}
	if err := s.Accept(Ticket{VIN: "VIN1", Generation: 50}, false); err != nil {
		t.Errorf("Accept latest: %v", err)
	}
}
