package reconcile

import (
	"sync"
	"time"

	"github.com/driftpad/driftpad/errors"
)

// keyedLock serializes reconciliation runs per user. Acquisition waits at
// most the given timeout, then fails fast with ErrLockBusy so a concurrent
// run surfaces as a retryable conflict instead of a pile-up.
type keyedLock struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{sems: make(map[string]chan struct{})}
}

func (l *keyedLock) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}

// acquire takes the per-key slot, returning a release func. A slot that
// stays busy past timeout returns ErrLockBusy.
func (l *keyedLock) acquire(key string, timeout time.Duration) (func(), error) {
	sem := l.sem(key)
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-timer.C:
		return nil, errors.Wrapf(errors.ErrLockBusy, "reconciliation already running for %s", key)
	}
}
