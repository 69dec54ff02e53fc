package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/channels/onebot"
	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/config"
)

func charactersCmd() *cobra.Command {
	var (
		jsonOutput bool
		timeout    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "characters <group-id>",
		Short: "Fetch the AI voice characters available in a group",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			setupLogging(cfg.Logging)
			mustValidGroupID(args[0])

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			client := onebot.NewClient(onebotConfig(cfg.OneBot), nil)
			if err := client.Start(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			defer client.Stop()
			if !waitConnected(ctx, client) {
				fmt.Fprintf(os.Stderr, "Error: could not connect to %s\n", cfg.OneBot.WSURL)
				os.Exit(1)
			}

			raw, err := client.ListCharacters(ctx, args[0])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			cat, err := characters.DecodeCatalog(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error decoding catalog: %s\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(cat, "", "  ")
				fmt.Println(string(data))
				return
			}
			printCatalog(cat)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", config.Ms(15000), "overall timeout")
	return cmd
}

func waitConnected(ctx context.Context, c *onebot.Client) bool {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for !c.Connected() {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

func printCatalog(cat characters.Catalog) {
	if cat.Count() == 0 {
		fmt.Println("No characters.")
		return
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "CATEGORY\tID\tNAME\n")
	for _, category := range cat {
		for _, ch := range category.Characters {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", category.Type, ch.ID, ch.Name)
		}
	}
	tw.Flush()
}
