package xcomm

import (
	"github.com/trickstertwo/xlog"
)

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e EngineEvent)

func (f ObserverFunc) OnEvent(e EngineEvent) { f(e) }

// LoggingObserver is an Adapter that emits EngineEvents via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e EngineEvent) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("message_id", e.MessageID),
	)
	switch e.Type {
	case Transitioned:
		ev.Debug().Str("from", string(e.From)).Str("to", string(e.To)).Msg("xcomm transition")
	case Deleted:
		ev.Info().Str("from", string(e.From)).Msg("xcomm message deleted")
	case AttemptFailed, ListenerFailed, EventPersistFailed:
		ev.Warn().Err(e.Err).Msg("xcomm event")
	case DispatchDropped:
		ev.Warn().Str("event_id", e.EventID).Msg("xcomm dispatch queue full, event dropped")
	case DeliveryFailure:
		ev.Error().Err(e.Err).Msg("xcomm delivery failed")
	case DeliveryConfirmation:
		ev.Info().Dur("duration", e.Duration).Msg("xcomm delivery confirmed")
	default:
		if e.Duration > 0 {
			ev = ev.With(xlog.Dur("duration", e.Duration))
		}
		if e.Delay > 0 {
			ev = ev.With(xlog.Dur("delay", e.Delay))
		}
		ev.Debug().Msg("xcomm event")
	}
}
