package onebot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// rawEvent is the subset of a OneBot v11 event the adapter reads.
type rawEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	SubType     string          `json:"sub_type"`
	MessageID   json.RawMessage `json:"message_id"`
	UserID      json.RawMessage `json:"user_id"`
	GroupID     json.RawMessage `json:"group_id"`
	SelfID      json.RawMessage `json:"self_id"`
	RawMessage  string          `json:"raw_message"`
	Message     json.RawMessage `json:"message"`
	Sender      struct {
		Nickname string `json:"nickname"`
		Card     string `json:"card"`
	} `json:"sender"`
	MetaEventType string `json:"meta_event_type"`
}

// wireSegment is one element of a OneBot message array.
type wireSegment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// parsedMessage is the text a user typed plus whether it addressed the bot.
type parsedMessage struct {
	Text      string
	Mentioned bool
}

var cqPattern = regexp.MustCompile(`\[CQ:([a-zA-Z0-9_]+)(?:,([^\]]*))?\]`)

// parseMessage extracts plain text from either the array or the CQ-string
// message format. @-mentions of selfID (or @all) set Mentioned and are
// removed from the text; other non-text segments are dropped.
func parseMessage(raw json.RawMessage, rawMessage string, selfID int64) parsedMessage {
	self := strconv.FormatInt(selfID, 10)
	isSelf := func(qq string) bool {
		return selfID != 0 && (qq == self || qq == "all")
	}

	var s string
	if len(raw) > 0 && json.Unmarshal(raw, &s) == nil {
		return parseCQ(s, isSelf)
	}

	var segs []wireSegment
	if len(raw) == 0 || json.Unmarshal(raw, &segs) != nil {
		return parseCQ(rawMessage, isSelf)
	}

	var b strings.Builder
	var out parsedMessage
	for _, seg := range segs {
		switch seg.Type {
		case "text":
			b.WriteString(dataString(seg.Data["text"]))
		case "at":
			if isSelf(dataString(seg.Data["qq"])) {
				out.Mentioned = true
			}
		}
	}
	out.Text = strings.TrimSpace(b.String())
	return out
}

func parseCQ(content string, isSelf func(string) bool) parsedMessage {
	var out parsedMessage
	text := cqPattern.ReplaceAllStringFunc(content, func(code string) string {
		m := cqPattern.FindStringSubmatch(code)
		if m[1] == "at" && isSelf(cqParams(m[2])["qq"]) {
			out.Mentioned = true
		}
		return ""
	})
	out.Text = strings.TrimSpace(unescapeCQ(text))
	return out
}

func cqParams(s string) map[string]string {
	params := make(map[string]string)
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			params[strings.TrimSpace(k)] = strings.TrimSpace(unescapeCQ(v))
		}
	}
	return params
}

var cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

func unescapeCQ(s string) string { return cqUnescaper.Replace(s) }

func dataString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// parseJSONInt64 accepts an id sent either as a number or a numeric string.
func parseJSONInt64(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseInt(s, 10, 64)
	}
	return 0, fmt.Errorf("cannot parse as int64: %s", string(raw))
}

// jsonString renders a JSON scalar as a string ("" for null or absent).
func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
