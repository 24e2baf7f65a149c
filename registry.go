package xcomm

import (
	"errors"
	"sync"
)

// StoreFactory constructs the persistence collaborators from a config blob.
type StoreFactory func(cfg map[string]any) (Stores, error)

var (
	storeRegistryMu sync.RWMutex
	storeRegistry   = map[string]StoreFactory{}
)

// RegisterStore registers a backend adapter under name.
func RegisterStore(name string, factory StoreFactory) error {
	if name == "" {
		return errors.New("xcomm: store name must not be empty")
	}
	if factory == nil {
		return errors.New("xcomm: store factory must not be nil")
	}
	storeRegistryMu.Lock()
	storeRegistry[name] = factory
	storeRegistryMu.Unlock()
	return nil
}

// NewStore constructs the stores registered under name.
func NewStore(name string, cfg map[string]any) (Stores, error) {
	storeRegistryMu.RLock()
	f, ok := storeRegistry[name]
	storeRegistryMu.RUnlock()
	if !ok {
		return Stores{}, ErrUnknownStore{name: name}
	}
	return f(cfg)
}

// RegisteredStores returns the names of all registered store backends.
func RegisteredStores() []string {
	storeRegistryMu.RLock()
	defer storeRegistryMu.RUnlock()
	out := make([]string, 0, len(storeRegistry))
	for k := range storeRegistry {
		out = append(out, k)
	}
	return out
}
