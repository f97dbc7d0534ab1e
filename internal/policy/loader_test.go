package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/testutil"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRuleFile_Valid(t *testing.T) {
	path := writeRuleFile(t, `
user_id: u1
default_autonomy: REVIEW
rules:
  - scope: action_type
    value: SEND_MESSAGE
    autonomy: OFF
    priority: 10
  - scope: channel
    value: general
    autonomy: AUTO
  - scope: global
    autonomy: REVIEW
`)

	rf, err := LoadRuleFile(path)
	require.NoError(t, err)
	assert.Equal(t, "u1", rf.UserID)
	assert.Equal(t, "REVIEW", rf.DefaultAutonomy)
	require.Len(t, rf.Rules, 3)
	assert.Equal(t, ScopeActionType, rf.Rules[0].Scope)
	assert.Equal(t, 10, rf.Rules[0].Priority)
	assert.Equal(t, "OFF", rf.Rules[0].Autonomy)
}

func TestLoadRuleFile_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "missing user id",
			content: "rules: []\n",
			errText: "user_id is required",
		},
		{
			name: "unknown scope",
			content: `
user_id: u1
rules:
  - scope: team
    value: eng
    autonomy: OFF
`,
			errText: "unknown scope",
		},
		{
			name: "missing value for scoped rule",
			content: `
user_id: u1
rules:
  - scope: channel
    autonomy: OFF
`,
			errText: "requires a value",
		},
		{
			name: "unknown autonomy",
			content: `
user_id: u1
rules:
  - scope: global
    autonomy: MAYBE
`,
			errText: "unknown autonomy",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRuleFile(t, tc.content)
			_, err := LoadRuleFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errText)
		})
	}
}

func TestLoadRuleFile_MissingFile(t *testing.T) {
	_, err := LoadRuleFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestImport_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	path := writeRuleFile(t, `
user_id: u1
default_autonomy: REVIEW
rules:
  - scope: channel
    value: general
    autonomy: OFF
  - scope: global
    autonomy: AUTO
`)
	rf, err := LoadRuleFile(path)
	require.NoError(t, err)
	require.NoError(t, Import(ctx, s, rf))

	profile, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "REVIEW", profile.DefaultAutonomy)

	rules, err := s.ListPolicyRules(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	// Imported rules drive resolution immediately.
	r := NewResolver(s)
	level, err := r.Resolve(ctx, "u1", Scope{ActionType: store.KindSendMessage, ChannelSlug: "general"})
	require.NoError(t, err)
	assert.Equal(t, LevelOff, level)

	level, err = r.Resolve(ctx, "u1", Scope{ActionType: store.KindSendMessage})
	require.NoError(t, err)
	assert.Equal(t, LevelAuto, level)
}
