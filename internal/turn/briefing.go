package turn

import (
	"context"
	"errors"
	"time"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// ensureBriefing inserts a briefing unless an equivalent one (same source
// message, or same normalized summary within the lookback window) already
// exists; retried failures therefore never stack duplicate notices.
func ensureBriefing(ctx context.Context, s *store.Store, item *store.BriefingItem, lookback time.Duration) (string, bool, error) {
	existing, err := s.FindDuplicateBriefing(ctx, item.UserID, item.SourceMessageID, item.Summary, lookback)
	if err == nil {
		return existing.ID, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", false, err
	}
	if err := s.InsertBriefing(ctx, s.DB(), item); err != nil {
		return "", false, err
	}
	return item.ID, true, nil
}
