package ingest

import (
	"context"
	"sync"
)

// CycleLock serializes ingestion cycles under the skip overlap policy.
// TryAcquire never blocks: acquired is false while another holder has it.
type CycleLock interface {
	TryAcquire(ctx context.Context) (release func(), acquired bool, err error)
}

// LocalLock is a CycleLock for a single process.
type LocalLock struct {
	mu sync.Mutex
}

// NewLocalLock creates an unlocked LocalLock.
func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) TryAcquire(_ context.Context) (func(), bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, true, nil
}
