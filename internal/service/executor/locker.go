package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultLockTTL           = 30 * time.Second
	defaultLockRetryInterval = 50 * time.Millisecond
	lockReleaseTimeout       = 5 * time.Second
)

var ErrSymbolLockUnavailable = errors.New("symbol lock unavailable")

// SymbolLocker serializes executions per symbol. Lock blocks until the symbol is free or ctx is
// done; the returned unlock func is safe to call more than once.
type SymbolLocker interface {
	Lock(ctx context.Context, symbol string) (unlock func(), err error)
}

// KeyedMutex is the in-process SymbolLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (m *KeyedMutex) Lock(ctx context.Context, symbol string) (func(), error) {
	m.mu.Lock()
	lock, ok := m.locks[symbol]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		m.locks[symbol] = lock
	}
	lock.refs++
	m.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(symbol, lock)
		return nil, fmt.Errorf("%w: %v", ErrSymbolLockUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			m.release(symbol, lock)
		})
	}, nil
}

func (m *KeyedMutex) release(symbol string, lock *keyedLock) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(m.locks, symbol)
	}
}

// ProcessingLockStore is a shared lock backend, see repository.SymbolLockRepository.
// RefreshProcessingLock extends the ttl and reports false when owner no longer holds the key.
type ProcessingLockStore interface {
	AcquireProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error)
	RefreshProcessingLock(ctx context.Context, key string, ttl time.Duration, owner string) (bool, error)
	ReleaseProcessingLock(ctx context.Context, key string, owner string) error
}

// DistributedLocker is a SymbolLocker for several workers trading the same account. The lease is
// refreshed every ttl/3 while held, so an execution may outlast the ttl.
type DistributedLocker struct {
	store           ProcessingLockStore
	ttl             time.Duration
	retryInterval   time.Duration
	refreshInterval time.Duration
}

func NewDistributedLocker(store ProcessingLockStore, ttl time.Duration) *DistributedLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}

	refreshInterval := ttl / 3
	if refreshInterval <= 0 {
		refreshInterval = ttl
	}

	return &DistributedLocker{
		store:           store,
		ttl:             ttl,
		retryInterval:   defaultLockRetryInterval,
		refreshInterval: refreshInterval,
	}
}

func (l *DistributedLocker) Lock(ctx context.Context, symbol string) (func(), error) {
	owner := uuid.NewString()
	key := symbolLockKey(symbol)

	for {
		acquired, err := l.store.AcquireProcessingLock(ctx, key, l.ttl, owner)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSymbolLockUnavailable, err)
		}
		if acquired {
			break
		}

		select {
		case <-time.After(l.retryInterval):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrSymbolLockUnavailable, ctx.Err())
		}
	}

	stop := make(chan struct{})
	go l.keepAlive(key, symbol, owner, stop)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)

			// the caller's ctx may already be cancelled, the lock still has to go
			releaseCtx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
			defer cancel()

			if err := l.store.ReleaseProcessingLock(releaseCtx, key, owner); err != nil {
				logrus.WithField("symbol", symbol).Errorf("failed to release symbol lock: %v", err)
			}
		})
	}, nil
}

func (l *DistributedLocker) keepAlive(key, symbol, owner string, stop <-chan struct{}) {
	ticker := time.NewTicker(l.refreshInterval)
	defer ticker.Stop()

	logger := logrus.WithField("symbol", symbol)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), l.refreshInterval)
		held, err := l.store.RefreshProcessingLock(ctx, key, l.ttl, owner)
		cancel()

		switch {
		case err != nil:
			logger.Warnf("failed to refresh symbol lock: %v", err)
		case !held:
			logger.Error("symbol lock expired while held")
			return
		}
	}
}

func symbolLockKey(symbol string) string {
	return "signal-executor:symbol:" + symbol
}
