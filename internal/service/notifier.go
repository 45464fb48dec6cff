package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/model"
	"github.com/VasantLong/cgms2025/internal/ports"
)

const publishTimeout = 2 * time.Second

// notifier announces committed section changes. Failures are logged and swallowed:
// the change is already durable and subscribers can resync from the version stamp.
type notifier struct {
	pub ports.EventPublisher
	log zerolog.Logger
}

func (n notifier) publish(ctx context.Context, evt model.ClassEvent) {
	if n.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := n.pub.Publish(ctx, evt); err != nil {
		n.log.Warn().Err(err).
			Str("event", evt.Type).
			Int("class_sn", evt.ClassSN).
			Msg("Failed to publish section event")
	}
}
