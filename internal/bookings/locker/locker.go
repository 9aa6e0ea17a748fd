package locker

import "context"

// SlotLocker serializes writers of one booking slot, keyed by model.SlotKey. Lock blocks until the slot is free
// or ctx is done; the returned func releases it and is safe to call once.
type SlotLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type chain []SlotLocker

// Chain takes every locker in order and releases them in reverse. A local locker in front
// of a distributed one keeps same-process contenders off the shared backend.
func Chain(lockers ...SlotLocker) SlotLocker {
	return chain(lockers)
}

func (c chain) Lock(ctx context.Context, key string) (func(), error) {
	unlocks := make([]func(), 0, len(c))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
