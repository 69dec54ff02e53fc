package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nextlevelbuilder/aivoice/internal/message"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

// Action names.
const (
	actionGetAICharacters   = "get_ai_characters"
	actionSendGroupAIRecord = "send_group_ai_record"
	actionSendGroupMsg      = "send_group_msg"
	actionSendPrivateMsg    = "send_private_msg"
)

// chatTypeGroup selects group voices in get_ai_characters.
const chatTypeGroup = 1

var _ platform.Client = (*Client)(nil)

// ListCharacters fetches the AI voice characters available in a group.
func (c *Client) ListCharacters(ctx context.Context, groupID string) (json.RawMessage, error) {
	gid, err := parseID(groupID)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, actionGetAICharacters, map[string]any{
		"group_id":  gid,
		"chat_type": chatTypeGroup,
	})
}

// SendGroupAIRecord posts text as a voice message spoken by characterID.
func (c *Client) SendGroupAIRecord(ctx context.Context, groupID, characterID, text string) error {
	gid, err := parseID(groupID)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, actionSendGroupAIRecord, map[string]any{
		"group_id":  gid,
		"character": characterID,
		"text":      text,
	})
	return err
}

// SendGroupText posts a plain text message to a group.
func (c *Client) SendGroupText(ctx context.Context, groupID, text string) error {
	return c.sendGroup(ctx, groupID, message.Text(text))
}

// SendChain delivers a reply chain to the chat the event came from.
func (c *Client) SendChain(ctx context.Context, ev platform.Event, chain message.Chain) error {
	if chain.IsEmpty() {
		return nil
	}
	if ev.MessageType == platform.MessageGroup {
		return c.sendGroup(ctx, ev.GroupID, chain)
	}
	uid, err := parseID(ev.UserID)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, actionSendPrivateMsg, map[string]any{
		"user_id": uid,
		"message": renderChain(chain),
	})
	return err
}

func (c *Client) sendGroup(ctx context.Context, groupID string, chain message.Chain) error {
	gid, err := parseID(groupID)
	if err != nil {
		return err
	}
	_, err = c.Call(ctx, actionSendGroupMsg, map[string]any{
		"group_id": gid,
		"message":  renderChain(chain),
	})
	return err
}

// renderChain converts a chain into OneBot message segments. Plain becomes a
// text segment; Other is passed through with its own type and data.
func renderChain(chain message.Chain) []wireSegment {
	out := make([]wireSegment, 0, len(chain))
	for _, seg := range chain {
		switch s := seg.(type) {
		case message.Plain:
			out = append(out, wireSegment{Type: "text", Data: map[string]any{"text": s.Text}})
		case message.Other:
			data := s.Data
			if data == nil {
				data = map[string]any{}
			}
			out = append(out, wireSegment{Type: s.Type, Data: data})
		}
	}
	return out
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("onebot: invalid id %q: %w", s, err)
	}
	return id, nil
}
