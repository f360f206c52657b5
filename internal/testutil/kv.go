package testutil

import (
	"context"
	"sync"

	gocache "github.com/patrickmn/go-cache"

	"swood/backend"
)

// KV is an in-process backend.KV for package tests. Errors injected with
// FailReads or FailWrites are returned by every later read or write.
type KV struct {
	items *gocache.Cache

	mu       sync.RWMutex
	readErr  error
	writeErr error
}

// NewKV creates an empty KV whose entries never expire
func NewKV() *KV {
	return &KV{items: gocache.New(gocache.NoExpiration, 0)}
}

// FailReads makes Get return err (nil restores normal behavior)
func (k *KV) FailReads(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.readErr = err
}

// FailWrites makes Set and Delete return err (nil restores normal behavior)
func (k *KV) FailWrites(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.writeErr = err
}

func (k *KV) Get(_ context.Context, key string) (string, bool, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.readErr != nil {
		return "", false, k.readErr
	}
	v, ok := k.items.Get(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (k *KV) Set(_ context.Context, key, value string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.writeErr != nil {
		return k.writeErr
	}
	k.items.Set(key, value, gocache.NoExpiration)
	return nil
}

func (k *KV) Delete(_ context.Context, keys ...string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.writeErr != nil {
		return k.writeErr
	}
	for _, key := range keys {
		k.items.Delete(key)
	}
	return nil
}

// Len returns the number of stored keys
func (k *KV) Len() int {
	return k.items.ItemCount()
}

func (k *KV) Close() error { return nil }

var _ backend.KV = (*KV)(nil)
