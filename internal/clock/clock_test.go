package clock

import (
	"sync"
	"testing"
	"time"
)

func TestFixed(t *testing.T) {
	at := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	c := Fixed{T: at}
	if !c.Now().Equal(at) {
		t.Errorf("Now() = %v, want %v", c.Now(), at)
	}
}

func TestManual_AdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	m := NewManual(start)

	m.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !m.Now().Equal(want) {
		t.Errorf("Now() after Advance = %v, want %v", m.Now(), want)
	}

	m.Set(start)
	if !m.Now().Equal(start) {
		t.Errorf("Now() after Set = %v, want %v", m.Now(), start)
	}
}

func TestManual_ConcurrentAdvance(t *testing.T) {
	start := time.Unix(0, 0).UTC()
	m := NewManual(start)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Advance(time.Second)
		}()
	}
	wg.Wait()

	if got := m.Now().Sub(start); got != 50*time.Second {
		t.Errorf("elapsed = %v, want 50s", got)
	}
}

func TestFunc(t *testing.T) {
	calls := 0
	c := Func(func() time.Time {
		calls++
		return time.Unix(int64(calls), 0)
	})
	c.Now()
	if c.Now().Unix() != 2 {
		t.Errorf("Func clock should be called each time")
	}
}
