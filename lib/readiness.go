package lib

import "sync"

// Readiness is closed once every component has started. Pollers wait on it
// before their first tick.
type Readiness struct {
	once sync.Once
	ch   chan struct{}
}

func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

func (r *Readiness) MarkReady() {
	r.once.Do(func() { close(r.ch) })
}

func (r *Readiness) Ready() <-chan struct{} {
	return r.ch
}

func (r *Readiness) IsReady() bool {
	select {
	case <-r.ch:
		return true
	default:
		return false
	}
}
