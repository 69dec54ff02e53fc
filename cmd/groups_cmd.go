package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/groups"
	"github.com/nextlevelbuilder/aivoice/internal/store"
)

func groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Inspect and edit per-group voice settings",
		Long: "Operates directly on the configured settings backend. Stop the gateway first when\n" +
			"using the file backend, or the running gateway may overwrite the change.",
	}
	cmd.AddCommand(groupsListCmd())
	cmd.AddCommand(groupsShowCmd())
	cmd.AddCommand(groupsSetDefaultCmd())
	cmd.AddCommand(groupsToggleCmd("toggle-speech", "Toggle auto-speech for a group", (*groups.Store).ToggleAutoSpeech, "auto-speech"))
	cmd.AddCommand(groupsToggleCmd("toggle-cosend", "Toggle text co-send for a group", (*groups.Store).ToggleTextCoSend, "text co-send"))
	return cmd
}

type groupEntry struct {
	GroupID          string `json:"groupId"`
	DefaultCharacter string `json:"defaultCharacter"`
	AutoSpeech       bool   `json:"autoSpeech"`
	TextCoSend       bool   `json:"textCoSend"`
	CachedCatalog    bool   `json:"cachedCatalog"`
}

// withGroups opens the backend, loads it into a groups.Store, runs fn and
// flushes pending writes before closing.
func withGroups(fn func(ctx context.Context, s *groups.Store, snap *store.Snapshot)) {
	ctx := context.Background()
	cfg := mustLoadConfig()
	setupLogging(cfg.Logging)

	writer := mustOpenSettings(ctx, cfg)
	snap, err := writer.Load(ctx)
	if err != nil {
		writer.Close()
		fmt.Fprintf(os.Stderr, "Error loading group settings: %s\n", err)
		os.Exit(1)
	}
	s := groups.NewStore(writer)
	s.Load(snap)

	fn(ctx, s, snap)

	if err := writer.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing settings: %s\n", err)
	}
	if err := writer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing settings store: %s\n", err)
		os.Exit(1)
	}
}

func mustValidGroupID(id string) {
	if err := store.ValidateGroupID(id); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func groupsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List groups with stored settings",
		Run: func(cmd *cobra.Command, args []string) {
			withGroups(func(_ context.Context, s *groups.Store, snap *store.Snapshot) {
				all := s.Groups()
				ids := lo.Union(lo.Keys(all), lo.Keys(snap.CharacterCache))
				sort.Strings(ids)
				entries := lo.Map(ids, func(id string, _ int) groupEntry {
					c := all[id]
					_, cached := snap.CharacterCache[id]
					return groupEntry{
						GroupID:          id,
						DefaultCharacter: c.DefaultCharacterID,
						AutoSpeech:       c.AutoSpeech,
						TextCoSend:       c.TextCoSend,
						CachedCatalog:    cached,
					}
				})
				printGroupEntries(entries, jsonOutput)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func groupsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <group-id>",
		Short: "Show one group's settings",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gid := args[0]
			mustValidGroupID(gid)
			withGroups(func(_ context.Context, s *groups.Store, snap *store.Snapshot) {
				c := s.Get(gid)
				_, cached := snap.CharacterCache[gid]
				printGroupEntries([]groupEntry{{
					GroupID:          gid,
					DefaultCharacter: c.DefaultCharacterID,
					AutoSpeech:       c.AutoSpeech,
					TextCoSend:       c.TextCoSend,
					CachedCatalog:    cached,
				}}, false)
			})
		},
	}
}

func groupsSetDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-default <group-id> <character-id>",
		Short: "Set a group's default voice character by id (\"\" clears it)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			gid, id := args[0], args[1]
			mustValidGroupID(gid)
			withGroups(func(ctx context.Context, s *groups.Store, _ *store.Snapshot) {
				s.SetDefaultCharacter(ctx, gid, id)
				if id == "" {
					fmt.Printf("Cleared default character of group %s\n", gid)
					return
				}
				fmt.Printf("Group %s now speaks as %s\n", gid, id)
			})
		},
	}
}

func groupsToggleCmd(use, short string, toggle func(*groups.Store, context.Context, string) bool, label string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <group-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			gid := args[0]
			mustValidGroupID(gid)
			withGroups(func(ctx context.Context, s *groups.Store, _ *store.Snapshot) {
				on := toggle(s, ctx, gid)
				fmt.Printf("Group %s: %s %s\n", gid, label, lo.Ternary(on, "on", "off"))
			})
		},
	}
}

func printGroupEntries(entries []groupEntry, jsonOutput bool) {
	if jsonOutput {
		data, _ := json.MarshalIndent(entries, "", "  ")
		fmt.Println(string(data))
		return
	}
	if len(entries) == 0 {
		fmt.Println("No groups.")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "GROUP\tDEFAULT\tSPEECH\tCOSEND\tCATALOG\n")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%v\t%s\n",
			e.GroupID, lo.Ternary(e.DefaultCharacter == "", "-", e.DefaultCharacter),
			e.AutoSpeech, e.TextCoSend, lo.Ternary(e.CachedCatalog, "cached", "-"))
	}
	tw.Flush()
}
