package redisstore

import (
	"fmt"

	"github.com/trickstertwo/xcomm"
)

// Use builds a Service on Redis stores and installs it as the default.
// Mirrors xlog/xclock "Use" behavior: explicit construction and global install.
func Use(cfg Config, opts ...Option) *xcomm.Service {
	b := xcomm.NewBuilder()
	if cfg.Sender != nil {
		st, err := Open(cfg)
		if err != nil {
			panic(fmt.Errorf("redisstore.Use: %w", err))
		}
		b.WithStores(st)
	} else {
		b.WithStore(StoreName, cfg.toMap())
	}

	for _, o := range opts {
		if o != nil {
			o(b)
		}
	}
	svc, err := b.Build()
	if err != nil {
		panic(fmt.Errorf("redisstore.Use: %w", err))
	}

	xcomm.SetDefault(svc)
	return svc
}
