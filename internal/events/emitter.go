package events

import (
	"context"

	"github.com/mborders/logmatic"

	"solana-fund-dao/internal/logging"
)

// Emitter publishes events after a commit. Failures are logged and reported
// through onError, never returned: the state change has already happened.
type Emitter struct {
	pub     Publisher
	log     *logmatic.Logger
	onError func(kind Kind)
}

// NewEmitter wraps pub. A nil pub discards events; onError may be nil.
func NewEmitter(pub Publisher, log *logmatic.Logger, onError func(kind Kind)) *Emitter {
	if pub == nil {
		pub = Noop{}
	}
	return &Emitter{pub: pub, log: logging.OrDefault(log), onError: onError}
}

// Emit publishes each event in order.
func (e *Emitter) Emit(ctx context.Context, evs ...Event) {
	if e == nil {
		return
	}
	for _, ev := range evs {
		if err := e.pub.Publish(ctx, ev); err != nil {
			e.log.Warn("publish %s event for fund %s failed: %v", ev.Kind, ev.FundID, err)
			if e.onError != nil {
				e.onError(ev.Kind)
			}
		}
	}
}
