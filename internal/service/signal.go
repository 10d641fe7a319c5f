package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/realtime"
)

const loanEventChannel = "coopvest:loan-events"

// LoanEvent is the cross-node wire format for loan progress and guarantor
// action events.
type LoanEvent struct {
	Kind       string                    `json:"kind"` // progress | action
	LoanID     string                    `json:"loanId"`
	Found      int                       `json:"found,omitempty"`
	Required   int                       `json:"required,omitempty"`
	Guarantors []coopvest.Guarantor      `json:"guarantors,omitempty"`
	Action     *coopvest.GuarantorAction `json:"action,omitempty"`
}

// SignalService relays loan events between nodes over redis pub/sub. The
// scan pipeline publishes here; every node's Relay loop (this one included)
// delivers inbound events to its local dispatcher, so there is a single
// dispatch path per loan regardless of which node processed the scan.
type SignalService struct {
	rdb     *redis.Client
	channel string
}

func NewSignalService(redisClient *redis.Client) *SignalService {
	return &SignalService{
		rdb:     redisClient,
		channel: loanEventChannel,
	}
}

func (s *SignalService) publish(ctx context.Context, event LoanEvent) error {
	jsonstr, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.rdb.Publish(ctx, s.channel, jsonstr).Err()
}

// BroadcastProgress publishes an aggregate progress event.
func (s *SignalService) BroadcastProgress(ctx context.Context, loanID string, found, required int, guarantors []coopvest.Guarantor) error {
	return s.publish(ctx, LoanEvent{
		Kind:       "progress",
		LoanID:     loanID,
		Found:      found,
		Required:   required,
		Guarantors: guarantors,
	})
}

// NotifyGuarantorAction publishes one guarantor's discrete action.
func (s *SignalService) NotifyGuarantorAction(ctx context.Context, loanID string, action coopvest.GuarantorAction) error {
	return s.publish(ctx, LoanEvent{
		Kind:   "action",
		LoanID: loanID,
		Action: &action,
	})
}

// Relay consumes the channel and forwards events to the local dispatcher
// until the context ends. A malformed payload is logged and skipped, never
// fatal.
func (s *SignalService) Relay(ctx context.Context, dispatcher *realtime.Dispatcher) {
	sub := s.rdb.Subscribe(ctx, s.channel)
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var event LoanEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.ErrorContext(
					ctx, "dropping malformed loan event",
					slog.String("error", err.Error()),
					slog.String("module", "signal"),
				)
				continue
			}
			switch event.Kind {
			case "progress":
				dispatcher.BroadcastProgress(event.LoanID, event.Found, event.Required, event.Guarantors)
			case "action":
				if event.Action != nil {
					dispatcher.NotifyGuarantorAction(event.LoanID, *event.Action)
				}
			default:
				slog.WarnContext(
					ctx, "unknown loan event kind",
					slog.String("kind", event.Kind),
					slog.String("module", "signal"),
				)
			}
		}
	}
}
