package timer

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/voxwork/voxwork/internal/infrastructure/logging"
	"github.com/voxwork/voxwork/internal/shared/types"
)

// TextSender is the slice of the transport capability the relay needs.
type TextSender interface {
	SendText(ctx context.Context, text string) error
	Connected() bool
}

// Transcripts receives the hidden copy of every delivered token.
type Transcripts interface {
	Append(role types.MessageRole, content string, hidden bool) types.Message
}

// Relay delivers milestone tokens into the live conversation. It does not
// know whether a session exists; it no-ops when the transport is down and
// never queues for later delivery.
type Relay struct {
	transport   TextSender
	transcripts Transcripts
	log         *logging.Logger
}

// NewRelay creates a milestone relay.
func NewRelay(transport TextSender, transcripts Transcripts, log *logging.Logger) *Relay {
	return &Relay{
		transport:   transport,
		transcripts: transcripts,
		log:         log.Named("relay"),
	}
}

// Deliver sends one token as a synthetic user turn and records it hidden in
// the transcript. Send failures are invisible to the user; a missed
// encouragement is low-stakes.
func (r *Relay) Deliver(ctx context.Context, token string) {
	if r.transport == nil || !r.transport.Connected() {
		r.log.Debug("milestone dropped while disconnected", zap.String("token", token))
		return
	}

	if err := r.transport.SendText(ctx, token); err != nil {
		r.log.Debug("milestone send failed", zap.Error(err))
	}
	r.transcripts.Append(types.RoleUser, token, true)
}

// Token builds the bracketed synthetic turn for a milestone. Five fixed
// shapes, one per milestone kind.
func Token(kind types.MilestoneKind, label string, elapsed, remaining, duration time.Duration) string {
	mins := int(math.Round(remaining.Minutes()))
	switch kind {
	case types.MilestoneQuarter:
		return fmt.Sprintf("[TIMER_QUARTER: 25%% complete, %dm remaining for %q]", mins, label)
	case types.MilestoneHalfway:
		return fmt.Sprintf("[TIMER_HALFWAY: 50%% complete, %dm remaining for %q]", mins, label)
	case types.MilestoneThreeQuarters:
		return fmt.Sprintf("[TIMER_THREE_QUARTERS: 75%% complete, %dm remaining for %q]", mins, label)
	case types.MilestoneFinalStretch:
		percent := 0
		if duration > 0 {
			percent = int(math.Round(float64(elapsed) / float64(duration) * 100))
		}
		return fmt.Sprintf("[TIMER_FINAL_STRETCH: %d%% complete, %dm remaining for %q]", percent, mins, label)
	case types.MilestoneComplete:
		return fmt.Sprintf("[TIMER_COMPLETE: 100%% complete, 0m remaining for %q]", label)
	}
	return ""
}
