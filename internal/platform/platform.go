// Package platform defines the contracts the voice pipeline consumes from the
// chat platform. The only implementation shipped is the OneBot v11 adapter in
// internal/channels/onebot.
package platform

import (
	"context"
	"encoding/json"
)

// OneBot is the platform name of the only adapter that yields a group context.
const OneBot = "onebot"

// Message types carried by Event.MessageType.
const (
	MessageGroup   = "group"
	MessagePrivate = "private"
)

// Event describes where an inbound message or a reply belongs.
type Event struct {
	ID          string // local event id, used for log correlation
	Platform    string // adapter name, e.g. "onebot"
	MessageType string // "group" or "private"
	GroupID     string
	UserID      string
	SenderName  string
}

// GroupContext returns the group id only when the event comes from the OneBot
// adapter and is group scoped.
func GroupContext(ev Event) (string, bool) {
	if ev.Platform != OneBot || ev.MessageType != MessageGroup || ev.GroupID == "" {
		return "", false
	}
	return ev.GroupID, true
}

// CharacterLister fetches the raw AI voice character catalog for a group.
// The response is either a tagged {"status":"ok","data":[...]} object or a
// bare list of categories. Implementations must honour ctx's deadline and
// report expiry as ErrRequestTimeout.
type CharacterLister interface {
	ListCharacters(ctx context.Context, groupID string) (json.RawMessage, error)
}

// VoiceSender posts a group message rendered as synthesized speech.
type VoiceSender interface {
	SendGroupAIRecord(ctx context.Context, groupID, characterID, text string) error
}

// TextSender posts a plain text message directly, bypassing the reply chain.
type TextSender interface {
	SendGroupText(ctx context.Context, groupID, text string) error
}

// Client is the full set of platform capabilities used by the pipeline and
// the command surface.
type Client interface {
	CharacterLister
	VoiceSender
	TextSender
}
