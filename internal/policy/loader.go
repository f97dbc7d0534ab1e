package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
)

// RuleFile is the YAML document accepted by `openwork policy import`.
type RuleFile struct {
	UserID          string     `yaml:"user_id"`
	DefaultAutonomy string     `yaml:"default_autonomy,omitempty"`
	Rules           []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule entry in a rule file.
type RuleSpec struct {
	Scope    string `yaml:"scope"` // action_type | channel | conversation | global
	Value    string `yaml:"value,omitempty"`
	Autonomy string `yaml:"autonomy"` // OFF | REVIEW | AUTO
	Priority int    `yaml:"priority,omitempty"`
}

// LoadRuleFile parses and validates a YAML rule file.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule file: %w", err)
	}
	if err := rf.validate(); err != nil {
		return nil, fmt.Errorf("invalid rule file %s: %w", path, err)
	}
	return &rf, nil
}

func (rf *RuleFile) validate() error {
	if rf.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	for i, r := range rf.Rules {
		switch r.Scope {
		case ScopeActionType, ScopeChannel, ScopeConversation, ScopeGlobal:
		default:
			return fmt.Errorf("rule %d: unknown scope %q", i, r.Scope)
		}
		if r.Scope != ScopeGlobal && r.Value == "" {
			return fmt.Errorf("rule %d: scope %s requires a value", i, r.Scope)
		}
		switch Level(r.Autonomy) {
		case LevelOff, LevelReview, LevelAuto:
		default:
			return fmt.Errorf("rule %d: unknown autonomy %q", i, r.Autonomy)
		}
	}
	return nil
}

// Import writes the rule file's default autonomy and rules into the store.
func Import(ctx context.Context, s *store.Store, rf *RuleFile) error {
	if rf.DefaultAutonomy != "" {
		if err := s.UpsertProfile(ctx, rf.UserID, rf.DefaultAutonomy); err != nil {
			return err
		}
	}
	for _, r := range rf.Rules {
		rule := &store.PolicyRule{
			UserID:     rf.UserID,
			ScopeType:  r.Scope,
			ScopeValue: r.Value,
			Autonomy:   r.Autonomy,
			Priority:   r.Priority,
		}
		if err := s.InsertPolicyRule(ctx, rule); err != nil {
			return err
		}
	}
	return nil
}
