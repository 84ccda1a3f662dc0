package worker

import "sync/atomic"

// Guard admits at most one pending-actions run at a time within this process.
// It is advisory only: two separate processes can still run concurrently.
type Guard struct {
	busy atomic.Bool
}

func (g *Guard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

func (g *Guard) Release() {
	g.busy.Store(false)
}
