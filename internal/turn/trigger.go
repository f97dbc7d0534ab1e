package turn

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/moshesimon/OpenWork-sub000/internal/store"
	"github.com/moshesimon/OpenWork-sub000/internal/tools"
)

// Trigger describes the cause of a turn. Event is set for inbound-message
// and bootstrap turns; Ref is an optional caller-supplied idempotency key.
type Trigger struct {
	UserID    string
	Source    store.TriggerSource
	Ref       string
	InputText string
	Event     *tools.SourceEvent
}

// NormalizeTriggerRef derives the canonical idempotency key for a trigger:
// `message:<id>` when a source message id is present, else `trigger:<ref>`
// for an explicit caller key, else a stable content hash. The message id
// wins even when a caller key is also present, so retries of the same
// message under different caller keys collapse onto one turn.
func NormalizeTriggerRef(t Trigger) string {
	if t.Event != nil && t.Event.MessageID != "" {
		return "message:" + t.Event.MessageID
	}
	if t.Ref != "" {
		return "trigger:" + t.Ref
	}
	conversation, sender := "", t.UserID
	if t.Event != nil {
		conversation = t.Event.ConversationID
		if t.Event.SenderID != "" {
			sender = t.Event.SenderID
		}
	}
	sum := sha256.Sum256([]byte(conversation + "|" + sender + "|" + normalizeBody(t.InputText)))
	return "hash:" + hex.EncodeToString(sum[:])[:16]
}

func normalizeBody(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
