// Package bus carries messages between the OneBot channel and the gateway
// consumer.
package bus

import (
	"time"

	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

// InboundMessage is a user message received from the platform.
type InboundMessage struct {
	Event      platform.Event
	MessageID  string
	Content    string // plain text with the bot mention removed
	Mentioned  bool   // the bot (or @all) was @-mentioned; replies alone do not count
	ReceivedAt time.Time
}

// OutboundMessage is a reply chain headed for the platform.
type OutboundMessage struct {
	Event platform.Event
	Chain message.Chain
}

// ChatKey identifies the conversation a message belongs to:
// "group:<id>" or "private:<user>".
func ChatKey(ev platform.Event) string {
	if ev.MessageType == platform.MessageGroup {
		return "group:" + ev.GroupID
	}
	return "private:" + ev.UserID
}
