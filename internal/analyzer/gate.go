package analyzer

import (
	"context"

	"github.com/rotisserie/eris"
)

// Gate caps concurrent analyzer calls across all tasks. The analyzer is the
// scarcest resource in the pipeline; every semantic strategy execution must
// hold a slot for the duration of its call.
type Gate struct {
	slots chan struct{}
}

// NewGate creates a Gate admitting at most maxConcurrent callers.
func NewGate(maxConcurrent int) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Gate{slots: make(chan struct{}, maxConcurrent)}
}

// Acquire blocks until a slot is free or the context is done.
func (g *Gate) Acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "analyzer: gate wait")
	}
}

// Release frees a slot acquired by Acquire.
func (g *Gate) Release() {
	<-g.slots
}
