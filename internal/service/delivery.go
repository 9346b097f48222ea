package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/webitel/chat-delivery-service/internal/domain/group"
	"github.com/webitel/chat-delivery-service/internal/domain/hub"
	"github.com/webitel/chat-delivery-service/internal/domain/model"
)

// Mode selects the delivery guarantee of a send.
type Mode int

const (
	// BestEffort hands the payload to each member and returns immediately;
	// a full member buffer is silently dropped. Appropriate for low-value,
	// high-frequency signals such as typing indicators.
	BestEffort Mode = iota
	// MustAttempt retries each member on a full buffer with exponential
	// backoff and surfaces exhaustion to the caller. Room-wide chat
	// messages are user-visible content and must not be silently lost.
	MustAttempt
)

// Roster is the slice of the hub the delivery layer needs.
type Roster interface {
	Members(g group.ID) []hub.Conn
}

// Delivery wraps the group-broadcast primitive with the bounded
// retry/backoff policy.
type Delivery struct {
	roster Roster
	policy RetryPolicy
	sleep  Sleeper
	logger *slog.Logger
	tracer trace.Tracer
}

// DeliveryOption configures a Delivery.
type DeliveryOption func(*Delivery)

// WithRetryPolicy overrides the default 3x exponential schedule.
func WithRetryPolicy(p RetryPolicy) DeliveryOption {
	return func(d *Delivery) { d.policy = p }
}

// WithSleeper injects the backoff wait, letting tests observe delays
// instead of spending them.
func WithSleeper(s Sleeper) DeliveryOption {
	return func(d *Delivery) { d.sleep = s }
}

func NewDelivery(roster Roster, logger *slog.Logger, opts ...DeliveryOption) *Delivery {
	d := &Delivery{
		roster: roster,
		policy: DefaultRetryPolicy,
		sleep:  realSleep,
		logger: logger,
		tracer: otel.Tracer("chat-delivery-service/delivery"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send fans the payload out to every current member of the group.
//
// Members are handled on independent goroutines: one member's backoff never
// delays delivery to the others, and no transaction spans the fanout —
// partial failure is the expected, reportable outcome. The first
// DeliveryFailure (or transport error) is returned after all members have
// been attempted.
func (d *Delivery) Send(ctx context.Context, g group.ID, payload []byte, mode Mode) error {
	ctx, span := d.tracer.Start(ctx, "delivery.Send",
		trace.WithAttributes(
			attribute.String("group", string(g)),
			attribute.Bool("guaranteed", mode == MustAttempt),
		))
	defer span.End()

	members := d.roster.Members(g)
	if len(members) == 0 {
		return nil
	}

	if mode == BestEffort {
		for _, m := range members {
			if err := m.TrySend(payload); errors.Is(err, hub.ErrBufferFull) {
				bestEffortDropped.Inc()
			}
		}
		return nil
	}

	// Plain errgroup on purpose: a derived context would abort the
	// remaining members' backoff once the first one fails.
	var eg errgroup.Group
	for _, m := range members {
		eg.Go(func() error {
			return d.sendMember(ctx, g, m, payload)
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (d *Delivery) sendMember(ctx context.Context, g group.ID, m hub.Conn, payload []byte) error {
	for attempt := range d.policy.MaxAttempts {
		err := m.TrySend(payload)
		switch {
		case err == nil:
			return nil

		case errors.Is(err, hub.ErrClosed):
			// The session already left; abandon, don't retry.
			return nil

		case errors.Is(err, hub.ErrBufferFull):
			if attempt == d.policy.MaxAttempts-1 {
				sendFailures.Inc()
				d.logger.Error("delivery exhausted retries",
					"group", string(g),
					"member", m.ID(),
					"attempts", d.policy.MaxAttempts)
				return &model.DeliveryFailure{Group: string(g), Member: m.ID().String()}
			}
			sendRetries.Inc()
			if serr := d.sleep(ctx, d.policy.Delay(attempt)); serr != nil {
				return serr
			}

		default:
			// Any other transport error is terminal immediately.
			return fmt.Errorf("delivery to group %s member %s: %w", g, m.ID(), err)
		}
	}
	return nil
}
