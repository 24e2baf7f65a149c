package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/webhook"
	"github.com/trickstertwo/xlog"
)

// newTransport posts each message to the provider URL, or only logs it when
// no provider is configured.
func newTransport(cfg *Config, logger *xlog.Logger) xcomm.Transport {
	if cfg.ProviderURL == "" {
		return xcomm.TransportFunc(func(ctx context.Context, msg *xcomm.Message) error {
			logger.Info().
				Str("message_id", msg.ID).
				Str("message_type", string(msg.MessageType)).
				Msg("message sent (no provider configured)")
			return nil
		})
	}
	client := webhook.NewClient(webhook.Config{
		Timeout:   cfg.AttemptTimeout,
		UserAgent: "xcomm-worker",
		Logger:    logger,
	})
	return xcomm.TransportFunc(func(ctx context.Context, msg *xcomm.Message) error {
		payload, err := json.Marshal(msg)
		if err != nil {
			return xcomm.Permanent(fmt.Errorf("encode message: %w", err))
		}
		return client.Send(ctx, cfg.ProviderURL, payload)
	})
}
