package sched

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestManual_RunsInDelayOrder(t *testing.T) {
	m := NewManual(zerolog.Nop())
	var order []string
	m.After(time.Second, "long", func() error { order = append(order, "long"); return nil })
	m.After(250*time.Millisecond, "short", func() error {
		order = append(order, "short")
		m.After(250*time.Millisecond, "nested", func() error { order = append(order, "nested"); return nil })
		return nil
	})
	if got := m.Pending(); len(got) != 2 || got[0] != "short" {
		t.Fatalf("pending: %v", got)
	}
	if n := m.RunAll(); n != 3 {
		t.Fatalf("ran %d items", n)
	}
	want := []string{"short", "nested", "long"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order: %v", order)
		}
	}
}

func TestManual_SwallowsErrorsAndPanics(t *testing.T) {
	m := NewManual(zerolog.Nop())
	m.After(0, "err", func() error { return errors.New("boom") })
	m.After(0, "panic", func() error { panic("boom") })
	ran := false
	m.After(0, "ok", func() error { ran = true; return nil })
	m.RunAll()
	if !ran {
		t.Fatalf("later item should still run")
	}
}

func TestTimer_RunsAfterDelay(t *testing.T) {
	tm := NewTimer(zerolog.Nop())
	var n atomic.Int32
	tm.After(5*time.Millisecond, "a", func() error { n.Add(1); return nil })
	tm.After(5*time.Millisecond, "b", func() error { panic("x") })
	tm.Wait()
	if n.Load() != 1 {
		t.Fatalf("expected one successful run, got %d", n.Load())
	}
	if tm.Pending() != 0 {
		t.Fatalf("pending: %d", tm.Pending())
	}
}
