package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
)

// DefaultBootstrapStale is how old a user's last analysis may be before a
// bootstrap-refresh turn is worth running.
const DefaultBootstrapStale = 180 * time.Second

// MaybeRunBootstrapAnalysis runs a BOOTSTRAP_REFRESH turn for the user if
// their last analysis is older than staleFor (or absent). The turn is
// synthesized from the most recent inbound message not authored by the user;
// with no such message there is nothing to analyze and the call is a no-op.
// Returns nil when no turn ran.
func (r *Runner) MaybeRunBootstrapAnalysis(ctx context.Context, userID string, staleFor time.Duration) (*Outcome, error) {
	if staleFor <= 0 {
		staleFor = DefaultBootstrapStale
	}

	profile, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("reading profile for bootstrap check: %w", err)
	}
	if profile.LastAnalysisAt != nil && r.now().Sub(*profile.LastAnalysisAt) < staleFor {
		return nil, nil
	}

	msg, err := r.store.LatestInboundMessage(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		log.Debug().Str("user_id", userID).Msg("bootstrap_skipped_no_inbound")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest inbound message: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("message_id", msg.ID).
		Msg("bootstrap_analysis_started")

	return r.Run(ctx, Trigger{
		UserID:    userID,
		Source:    store.SourceBootstrapRefresh,
		InputText: msg.Body,
		Event: &tools.SourceEvent{
			ConversationID: msg.ConversationID,
			MessageID:      msg.ID,
			SenderID:       msg.SenderID,
		},
	})
}
