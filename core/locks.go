package core

import (
	"encoding/hex"
	"sort"
	"sync"
)

// keyedLocks serialises mutations per record. Keys are always acquired in
// sorted order so two operations sharing records cannot deadlock.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock acquires every key and returns the function releasing them.
func (k *keyedLocks) Lock(keys ...string) func() {
	ordered := dedupe(keys)
	held := make([]*keyedLock, 0, len(ordered))
	for _, key := range ordered {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(ordered[i])
		}
	}
}

func (k *keyedLocks) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// size reports the number of keys currently tracked.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

const chainLockKey = "chain"

func escrowLockKey(id [32]byte) string { return "escrow:" + hex.EncodeToString(id[:]) }

func streamLockKey(id [32]byte) string { return "stream:" + hex.EncodeToString(id[:]) }

func accountLockKey(addr [20]byte) string { return "account:" + hex.EncodeToString(addr[:]) }
