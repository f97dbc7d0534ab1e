// Package policy resolves per-action autonomy levels for the agent.
//
// A user's policy is a prioritized list of scope-specific rules plus a
// profile-level default. Resolution is read-only and side-effect free; the
// tool harness consults it before any irreversible outbound effect.
package policy

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	openworkotel "github.com/moshesimon/OpenWork-sub000/internal/otel"
	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

var tracer = openworkotel.Tracer("github.com/moshesimon/OpenWork-sub000/internal/policy")

// Level is the autonomy tri-state controlling whether an action executes
// automatically, is blocked pending manual review, or executes freely.
type Level string

const (
	LevelOff    Level = "OFF"
	LevelReview Level = "REVIEW"
	LevelAuto   Level = "AUTO"
)

// Scope types, in resolution order. First match wins; scope-type order is
// the only tiebreak between rules of different scopes.
const (
	ScopeActionType   = "action_type"
	ScopeChannel      = "channel"
	ScopeConversation = "conversation"
	ScopeGlobal       = "global"
)

var scopeOrder = []string{ScopeActionType, ScopeChannel, ScopeConversation, ScopeGlobal}

// Scope describes the action being considered.
type Scope struct {
	ActionType     store.ActionKind
	ChannelSlug    string
	ConversationID string
}

// Resolver resolves autonomy levels from stored rules.
type Resolver struct {
	store *store.Store
}

// NewResolver creates a resolver over the workspace store.
func NewResolver(s *store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the autonomy level for the scope: actionType-scoped rule →
// channel-scoped rule → conversation-scoped rule → global wildcard → profile
// default → AUTO.
func (r *Resolver) Resolve(ctx context.Context, userID string, sc Scope) (Level, error) {
	ctx, span := tracer.Start(ctx, "policy.resolve",
		trace.WithAttributes(
			attribute.String("user_id", userID),
			attribute.String("action_type", string(sc.ActionType)),
		))
	defer span.End()

	rules, err := r.store.ListPolicyRules(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("loading policy rules: %w", err)
	}

	for _, scopeType := range scopeOrder {
		for _, rule := range rules {
			if rule.ScopeType != scopeType {
				continue
			}
			if !scopeMatches(scopeType, rule.ScopeValue, sc) {
				continue
			}
			level := ParseLevel(rule.Autonomy)
			span.SetAttributes(
				attribute.String("policy.matched_scope", scopeType),
				attribute.String("policy.level", string(level)),
			)
			return level, nil
		}
	}

	profile, err := r.store.GetProfile(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("loading profile: %w", err)
	}
	if profile.DefaultAutonomy != "" {
		level := ParseLevel(profile.DefaultAutonomy)
		span.SetAttributes(attribute.String("policy.level", string(level)))
		return level, nil
	}
	return LevelAuto, nil
}

func scopeMatches(scopeType, scopeValue string, sc Scope) bool {
	switch scopeType {
	case ScopeActionType:
		return scopeValue == string(sc.ActionType)
	case ScopeChannel:
		return sc.ChannelSlug != "" && scopeValue == sc.ChannelSlug
	case ScopeConversation:
		return sc.ConversationID != "" && scopeValue == sc.ConversationID
	case ScopeGlobal:
		return true
	}
	return false
}

// ParseLevel maps a stored string onto a Level. Unknown values resolve to
// AUTO, matching the hardcoded final fallback of Resolve.
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelOff:
		return LevelOff
	case LevelReview:
		return LevelReview
	default:
		return LevelAuto
	}
}
