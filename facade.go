package xcomm

import (
	"context"
	"sync"
)

var (
	defaultService   *Service
	defaultServiceMu sync.Mutex
)

// Default returns the process-wide Service. If none is installed yet it builds
// one, letting init configure the Builder (stores are required).
func Default(init func(b *Builder)) (*Service, error) {
	defaultServiceMu.Lock()
	defer defaultServiceMu.Unlock()

	if defaultService != nil {
		return defaultService, nil
	}
	b := NewBuilder()
	if init != nil {
		init(b)
	}
	s, err := b.Build()
	if err != nil {
		return nil, err
	}
	defaultService = s
	return defaultService, nil
}

// SetDefault replaces the process-wide default Service.
func SetDefault(s *Service) {
	if s == nil {
		panic("xcomm: SetDefault called with nil Service")
	}
	defaultServiceMu.Lock()
	defaultService = s
	defaultServiceMu.Unlock()
}

// Create is the Facade using the default service.
func Create(ctx context.Context, nm NewMessage) (*Message, error) {
	s, err := Default(nil)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, nm)
}

// Send is the Facade using the default service.
func Send(ctx context.Context, id string, tr Transport) (*Message, error) {
	s, err := Default(nil)
	if err != nil {
		return nil, err
	}
	return s.Send(ctx, id, tr)
}

// Cancel is the Facade using the default service.
func Cancel(ctx context.Context, id string) (*Message, error) {
	s, err := Default(nil)
	if err != nil {
		return nil, err
	}
	return s.Cancel(ctx, id)
}
