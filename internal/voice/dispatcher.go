package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

const (
	// DefaultMaxChars is the longest text the platform will voice.
	DefaultMaxChars = 500
	// DefaultTimeout bounds one voice send.
	DefaultTimeout = 10 * time.Second
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/aivoice/internal/voice")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	MaxChars int           // default 500
	Timeout  time.Duration // default 10s
}

// Dispatcher sends cleaned text to the platform as an AI voice record.
// It is a best-effort side channel: Send never fails.
type Dispatcher struct {
	sender   platform.VoiceSender
	maxChars int
	timeout  time.Duration
}

// NewDispatcher creates a dispatcher on top of the platform's voice sender.
func NewDispatcher(sender platform.VoiceSender, cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		sender:   sender,
		maxChars: cfg.MaxChars,
		timeout:  cfg.Timeout,
	}
	if d.maxChars <= 0 {
		d.maxChars = DefaultMaxChars
	}
	if d.timeout <= 0 {
		d.timeout = DefaultTimeout
	}
	return d
}

// Send voices text with the given character in a group. Text longer than the
// limit is cut. Failures are logged and swallowed.
func (d *Dispatcher) Send(ctx context.Context, groupID string, ch characters.Character, text string) {
	text = Truncate(text, d.maxChars)

	ctx, span := tracer.Start(ctx, "voice.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("group_id", groupID),
		attribute.String("character_id", ch.ID),
		attribute.Int("text_runes", len([]rune(text))),
	)

	if err := d.send(ctx, groupID, ch.ID, text); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("voice: dispatch failed",
			"group", groupID,
			"character", ch.ID,
			"timeout", errors.Is(err, platform.ErrRequestTimeout),
			"error", err,
		)
		return
	}
	slog.Debug("voice: dispatched", "group", groupID, "character", ch.ID)
}

func (d *Dispatcher) send(ctx context.Context, groupID, characterID, text string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("voice sender panic: %v", r)
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err = d.sender.SendGroupAIRecord(callCtx, groupID, characterID, text)
	if err != nil && !errors.Is(err, platform.ErrRequestTimeout) && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", platform.ErrRequestTimeout, err)
	}
	return err
}

// Truncate keeps the first n characters (runes) of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
