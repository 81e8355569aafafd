// Package device drives the physical side of the house: camera, lights and
// the lease that keeps hardware operations from interleaving.
package device

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Lock grants exclusive use of the camera and sensors to one operation at a
// time: a photo, a climate reading or one security detection cycle.
type Lock struct {
	sem  *semaphore.Weighted
	held atomic.Int32
}

func NewLock() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the hardware is free or ctx is done. The returned
// release func is idempotent.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire hardware: %w", err)
	}
	l.held.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			l.held.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// Held reports whether some operation currently owns the hardware.
func (l *Lock) Held() bool {
	return l.held.Load() > 0
}
