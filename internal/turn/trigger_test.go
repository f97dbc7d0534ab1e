package turn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
)

func TestNormalizeTriggerRef_MessageIDWins(t *testing.T) {
	ref := NormalizeTriggerRef(Trigger{
		UserID: "u1",
		Source: store.SourceInboundChannelMessage,
		Ref:    "caller-key-1",
		Event:  &tools.SourceEvent{ConversationID: "c1", MessageID: "m42", SenderID: "u2"},
	})
	// The source message id canonicalizes the ref even when the caller
	// supplied its own key, so retries under different keys collapse.
	assert.Equal(t, "message:m42", ref)
}

func TestNormalizeTriggerRef_CallerKey(t *testing.T) {
	ref := NormalizeTriggerRef(Trigger{
		UserID: "u1",
		Source: store.SourceUserCommand,
		Ref:    "retry-7",
	})
	assert.Equal(t, "trigger:retry-7", ref)
}

func TestNormalizeTriggerRef_ContentHash(t *testing.T) {
	base := Trigger{
		UserID:    "u1",
		Source:    store.SourceInboundDMMessage,
		InputText: "Review the doc  PLEASE",
		Event:     &tools.SourceEvent{ConversationID: "c1", SenderID: "u2"},
	}
	ref := NormalizeTriggerRef(base)
	assert.True(t, strings.HasPrefix(ref, "hash:"))
	assert.Len(t, ref, len("hash:")+16)

	// Case and whitespace differences normalize to the same hash.
	variant := base
	variant.InputText = "  review the doc please "
	assert.Equal(t, ref, NormalizeTriggerRef(variant))

	// A different sender is a different logical event.
	other := base
	other.Event = &tools.SourceEvent{ConversationID: "c1", SenderID: "u3"}
	assert.NotEqual(t, ref, NormalizeTriggerRef(other))

	// So is a different conversation.
	other = base
	other.Event = &tools.SourceEvent{ConversationID: "c2", SenderID: "u2"}
	assert.NotEqual(t, ref, NormalizeTriggerRef(other))
}

func TestNormalizeTriggerRef_HashFallsBackToUserAsSender(t *testing.T) {
	a := NormalizeTriggerRef(Trigger{UserID: "u1", InputText: "hello"})
	b := NormalizeTriggerRef(Trigger{UserID: "u2", InputText: "hello"})
	assert.NotEqual(t, a, b)
}
