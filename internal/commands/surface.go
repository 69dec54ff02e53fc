package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/groups"
	"github.com/nextlevelbuilder/aivoice/internal/platform"
)

// Settings is the slice of groups.Store the commands mutate.
type Settings interface {
	Get(groupID string) groups.Config
	SetDefaultCharacter(ctx context.Context, groupID, characterID string)
	ToggleAutoSpeech(ctx context.Context, groupID string) bool
	ToggleTextCoSend(ctx context.Context, groupID string) bool
}

// Catalog is the slice of characters.Cache the commands read.
type Catalog interface {
	Refresh(ctx context.Context, groupID string) error
	EnsureLoaded(ctx context.Context, groupID string) error
	Catalog(groupID string) (characters.Catalog, bool)
	FindByIdentifier(groupID, ident string) (characters.Character, bool)
	DefaultCharacter(groupID string) (characters.Character, bool)
}

// Replier sends a command's acknowledgement back to where it came from.
type Replier interface {
	Reply(ctx context.Context, ev platform.Event, text string) error
}

// Surface runs commands. Every invocation ends in exactly one reply; reply
// failures are logged and dropped.
type Surface struct {
	settings Settings
	catalog  Catalog
	replier  Replier
	router   *Router
}

func NewSurface(settings Settings, catalog Catalog, replier Replier, router *Router) *Surface {
	return &Surface{settings: settings, catalog: catalog, replier: replier, router: router}
}

// Router returns the router used to recognise commands.
func (s *Surface) Router() *Router { return s.router }

// Handle runs a parsed command for an event.
func (s *Surface) Handle(ctx context.Context, ev platform.Event, cmd Command) {
	slog.Info("command received", "command", cmd.Name, "group", ev.GroupID, "user", ev.UserID)

	if cmd.Name == Help {
		s.reply(ctx, ev, renderHelp(s.router.Triggers()))
		return
	}

	gid, ok := platform.GroupContext(ev)
	if !ok {
		s.reply(ctx, ev, msgGroupOnly)
		return
	}

	switch cmd.Name {
	case ListCharacters:
		s.reply(ctx, ev, s.listCharacters(ctx, gid))
	case ToggleSpeech:
		s.reply(ctx, ev, s.toggleSpeech(ctx, gid))
	case SetDefault:
		s.reply(ctx, ev, s.setDefault(ctx, gid, cmd.Arg(0)))
	case ToggleCoSend:
		s.reply(ctx, ev, renderCoSendToggle(s.settings.ToggleTextCoSend(ctx, gid)))
	default:
		slog.Warn("unknown command", "command", cmd.Name)
		s.reply(ctx, ev, renderHelp(s.router.Triggers()))
	}
}

func (s *Surface) listCharacters(ctx context.Context, gid string) string {
	if err := s.catalog.EnsureLoaded(ctx, gid); err != nil {
		slog.Warn("commands: list characters failed", "group", gid, "error", err)
		return msgListFailed + describeError(err)
	}
	cat, _ := s.catalog.Catalog(gid)
	if cat.Count() == 0 {
		return msgNoCharacters
	}
	return renderCatalog(cat)
}

func (s *Surface) toggleSpeech(ctx context.Context, gid string) string {
	enabled := s.settings.ToggleAutoSpeech(ctx, gid)
	name := ""
	if ch, ok := s.catalog.DefaultCharacter(gid); ok {
		name = ch.Name
	}
	return renderSpeechToggle(enabled, name)
}

func (s *Surface) setDefault(ctx context.Context, gid, ident string) string {
	if ident == "" {
		t := s.router.Triggers()
		return fmt.Sprintf("%s请提供人物名称或ID，例如：%s%s 1001", msgSetFailed, t.Prefix, t.SetDefault)
	}
	if err := s.catalog.Refresh(ctx, gid); err != nil {
		slog.Warn("commands: set default refresh failed", "group", gid, "error", err)
		return msgSetFailed + describeError(err)
	}
	ch, ok := s.catalog.FindByIdentifier(gid, ident)
	if !ok {
		return msgNotFound + ident
	}
	s.settings.SetDefaultCharacter(ctx, gid, ch.ID)
	slog.Info("default character set", "group", gid, "character", ch.ID)
	return fmt.Sprintf(msgSetDefaultDone, ch.Name, ch.ID)
}

func (s *Surface) reply(ctx context.Context, ev platform.Event, text string) {
	if err := s.replier.Reply(ctx, ev, text); err != nil {
		slog.Warn("commands: reply failed", "group", ev.GroupID, "user", ev.UserID, "error", err)
	}
}
