package gossip

import "go.uber.org/atomic"

// Latch records the one-way WAITING -> READY transition. Fire succeeds
// exactly once; Fired and Done are safe from any goroutine.
type Latch struct {
	fired *atomic.Bool
	done  chan struct{}
}

func NewLatch() *Latch {
	return &Latch{fired: atomic.NewBool(false), done: make(chan struct{})}
}

// Fire reports whether this call performed the transition.
func (l *Latch) Fire() bool {
	if !l.fired.CAS(false, true) {
		return false
	}
	close(l.done)
	return true
}

func (l *Latch) Fired() bool { return l.fired.Load() }

func (l *Latch) Done() <-chan struct{} { return l.done }
