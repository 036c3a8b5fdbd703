// Package notify bridges engine events to the external notification
// boundary. Delivery (push, messaging) lives outside this process; the
// Sink interface is the hand-off point.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joocy75-hash/ai-Agent-sub002/internal/events"
)

// Sink receives rendered notifications. Implementations deliver them to
// users; the default LogSink only records them.
type Sink interface {
	Notify(ctx context.Context, userID, message string)
}

// LogSink writes notifications to the logger.
type LogSink struct {
	Log *zap.Logger
}

func (s *LogSink) Notify(_ context.Context, userID, message string) {
	s.Log.Info("notify", zap.String("user_id", userID), zap.String("message", message))
}

// Notifier subscribes to engine events and forwards exactly one rendered
// message per state change to the sink.
type Notifier struct {
	bus  *events.Bus
	sink Sink
	log  *zap.Logger
}

// New creates a notifier on the given bus.
func New(bus *events.Bus, sink Sink, log *zap.Logger) *Notifier {
	return &Notifier{bus: bus, sink: sink, log: log.Named("notify")}
}

// Start consumes events until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	topics := []events.Event{
		events.EventBotStarted,
		events.EventBotStopped,
		events.EventPositionOpened,
		events.EventPositionClosed,
		events.EventRiskDenied,
		events.EventEmergencyExit,
		events.EventInstanceError,
	}
	for _, topic := range topics {
		ch, unsub := n.bus.Subscribe(topic, 64)
		go func(topic events.Event, ch <-chan any, unsub func()) {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case payload, ok := <-ch:
					if !ok {
						return
					}
					n.dispatch(ctx, topic, payload)
				}
			}
		}(topic, ch, unsub)
	}
}

func (n *Notifier) dispatch(ctx context.Context, topic events.Event, payload any) {
	switch ev := payload.(type) {
	case events.BotEvent:
		switch topic {
		case events.EventInstanceError:
			n.sink.Notify(ctx, ev.UserID, fmt.Sprintf("Bot %s halted (%s): %s", ev.InstanceID, ev.Symbol, ev.Detail))
		case events.EventBotStopped:
			n.sink.Notify(ctx, ev.UserID, fmt.Sprintf("Bot %s stopped (%s)", ev.InstanceID, ev.Symbol))
		default:
			n.sink.Notify(ctx, ev.UserID, fmt.Sprintf("Bot %s started (%s)", ev.InstanceID, ev.Symbol))
		}

	case events.PositionEvent:
		switch topic {
		case events.EventPositionOpened:
			n.sink.Notify(ctx, ev.UserID, fmt.Sprintf(
				"Opened %s %s: size %.6f @ %.4f, %dx", ev.Side, ev.Symbol, ev.Size, ev.Price, ev.Leverage))
		case events.EventPositionClosed, events.EventEmergencyExit:
			n.sink.Notify(ctx, ev.UserID, fmt.Sprintf(
				"Closed %s %s @ %.4f (%s), PnL %.2f", ev.Side, ev.Symbol, ev.Price, ev.Reason, ev.PnL))
		}

	case events.RiskDeniedEvent:
		n.sink.Notify(ctx, ev.UserID, fmt.Sprintf(
			"Trade blocked on %s: %s (%.2f / limit %.2f)", ev.Symbol, ev.Rule, ev.Value, ev.Limit))

	default:
		n.log.Warn("unknown event payload", zap.String("topic", string(topic)))
	}
}
