package platform

import (
	"errors"
	"fmt"
	"testing"
)

func TestGroupContext(t *testing.T) {
	tests := []struct {
		name   string
		ev     Event
		wantID string
		wantOK bool
	}{
		{"onebot group", Event{Platform: OneBot, MessageType: MessageGroup, GroupID: "123"}, "123", true},
		{"onebot private", Event{Platform: OneBot, MessageType: MessagePrivate, UserID: "9"}, "", false},
		{"other platform group", Event{Platform: "telegram", MessageType: MessageGroup, GroupID: "123"}, "", false},
		{"missing group id", Event{Platform: OneBot, MessageType: MessageGroup}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := GroupContext(tt.ev)
			if id != tt.wantID || ok != tt.wantOK {
				t.Errorf("GroupContext() = (%q, %v), want (%q, %v)", id, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestSendError_Is(t *testing.T) {
	cause := errors.New("retcode 100")
	err := fmt.Errorf("dispatch: %w", &SendError{Action: "send_group_ai_record", Err: cause})

	if !errors.Is(err, ErrPlatformSend) {
		t.Error("expected errors.Is(err, ErrPlatformSend)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the cause to be unwrapped")
	}
	var se *SendError
	if !errors.As(err, &se) || se.Action != "send_group_ai_record" {
		t.Errorf("errors.As failed or wrong action: %+v", se)
	}
}
