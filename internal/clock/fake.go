package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for deterministic tests of debounce and
// timeout behavior (spec §8's scenario and property tests).
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	nextSeq int
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) After(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	t := &fakeTimer{
		f:      f,
		seq:    f.nextSeq,
		fireAt: f.now.Add(d),
		ch:     make(chan time.Time, 1),
		active: true,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake clock forward by d, firing any timers whose
// deadline has passed, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	due := f.dueLocked()
	f.mu.Unlock()

	for _, t := range due {
		t.fire()
	}
}

func (f *Fake) dueLocked() []*fakeTimer {
	var due []*fakeTimer
	var remaining []*fakeTimer
	for _, t := range f.timers {
		if t.isActive() && !t.fireAt.After(f.now) {
			due = append(due, t)
		} else {
			remaining = append(remaining, t)
		}
	}
	f.timers = remaining
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })
	return due
}

type fakeTimer struct {
	f      *Fake
	seq    int
	fireAt time.Time
	ch     chan time.Time
	mu     sync.Mutex
	active bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) isActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return
	}
	t.active = false
	now := t.f.Now()
	t.mu.Unlock()
	select {
	case t.ch <- now:
	default:
	}
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	wasActive := t.active
	t.active = false
	t.mu.Unlock()
	return wasActive
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	wasActive := t.active
	t.active = true
	t.mu.Unlock()

	t.f.mu.Lock()
	t.f.nextSeq++
	t.seq = t.f.nextSeq
	t.fireAt = t.f.now.Add(d)
	found := false
	for _, existing := range t.f.timers {
		if existing == t {
			found = true
			break
		}
	}
	if !found {
		t.f.timers = append(t.f.timers, t)
	}
	t.f.mu.Unlock()

	select {
	case <-t.ch:
	default:
	}
	return wasActive
}
