package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/channels/onebot"
	"github.com/nextlevelbuilder/aivoice/internal/config"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, settings backend and OneBot connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("aivoice doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Provider
	fmt.Println()
	fmt.Println("  Provider:")
	fmt.Printf("    %-12s %s\n", "Type:", cfg.Provider.Type)
	fmt.Printf("    %-12s %s\n", "Model:", orNone(cfg.Provider.Model))
	fmt.Printf("    %-12s %s\n", "API key:", maskKey(cfg.Provider.APIKey))

	// Settings backend
	fmt.Println()
	fmt.Println("  Settings store:")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backend, err := openSettingsStore(ctx, cfg.Store)
	if err != nil {
		fmt.Printf("    %-12s %s (ERROR: %s)\n", cfg.Store.Backend+":", storeTarget(cfg), err)
	} else {
		snap, lerr := backend.Load(ctx)
		backend.Close()
		if lerr != nil {
			fmt.Printf("    %-12s %s (ERROR: %s)\n", cfg.Store.Backend+":", storeTarget(cfg), lerr)
		} else {
			fmt.Printf("    %-12s %s (%d groups)\n", cfg.Store.Backend+":", storeTarget(cfg), len(snap.GroupIDs()))
		}
	}

	// OneBot
	fmt.Println()
	fmt.Println("  OneBot:")
	client := onebot.NewClient(onebotConfig(cfg.OneBot), nil)
	status := "unreachable"
	if err := client.Start(ctx); err == nil {
		if waitConnected(ctx, client) {
			status = "connected"
		}
		client.Stop()
	}
	fmt.Printf("    %-12s %s (%s)\n", "WebSocket:", cfg.OneBot.WSURL, status)

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func storeTarget(cfg *config.Config) string {
	switch cfg.Store.Backend {
	case "postgres":
		return "(dsn " + maskKey(cfg.Store.PostgresDSN) + ")"
	case "redis":
		return "(url " + maskKey(cfg.Store.RedisURL) + ", prefix " + cfg.Store.RedisPrefix + ")"
	default:
		return config.ExpandHome(cfg.Store.Path)
	}
}

func maskKey(s string) string {
	if s == "" {
		return "(not configured)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func orNone(s string) string {
	if s == "" {
		return "(provider default)"
	}
	return s
}
