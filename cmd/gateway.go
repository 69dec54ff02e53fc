package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/bus"
	"github.com/nextlevelbuilder/aivoice/internal/channels/onebot"
	"github.com/nextlevelbuilder/aivoice/internal/characters"
	"github.com/nextlevelbuilder/aivoice/internal/commands"
	"github.com/nextlevelbuilder/aivoice/internal/config"
	"github.com/nextlevelbuilder/aivoice/internal/gateway"
	"github.com/nextlevelbuilder/aivoice/internal/groups"
	"github.com/nextlevelbuilder/aivoice/internal/pipeline"
	"github.com/nextlevelbuilder/aivoice/internal/providers"
	"github.com/nextlevelbuilder/aivoice/internal/store"
	"github.com/nextlevelbuilder/aivoice/internal/tracing"
	"github.com/nextlevelbuilder/aivoice/internal/voice"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Connect to OneBot and serve voice replies (default command)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	cfgPath := resolveConfigPath()
	cfg := mustLoadConfig()
	setupLogging(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing: the collector always runs; OTLP export only with -tags otel.
	collector := tracing.NewCollector(0)
	tp, err := tracing.Setup(ctx, cfg.Telemetry.ServiceName, Version, collector, initOTelExporter(ctx, cfg)...)
	if err != nil {
		slog.Warn("tracing setup failed", "error", err)
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			tp.Shutdown(sctx)
		}()
	}

	// Settings: backend behind a fire-and-forget writer.
	writer := mustOpenSettings(ctx, cfg)
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Warn("settings store close failed", "error", err)
		}
	}()
	snap, err := writer.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading group settings: %s\n", err)
		os.Exit(1)
	}
	settings := groups.NewStore(writer)
	settings.Load(snap)
	slog.Info("group settings loaded", "backend", cfg.Store.Backend, "groups", len(snap.GroupIDs()))

	// OneBot channel and message bus.
	mb := bus.New()
	router := commands.NewRouter(triggersFromConfig(cfg.Commands))
	channel := onebot.NewChannel(onebotConfig(cfg.OneBot), mb, onebot.ChannelOptions{
		DedupeTTL: config.Ms(cfg.Gateway.DedupeTTLMs),
		Debounce:  config.Ms(cfg.Gateway.DebounceMs),
		IsCommand: func(text string) bool {
			_, ok := router.Parse(text)
			return ok
		},
	})
	client := channel.Client()

	// Characters, voice and the response pipeline.
	chars, err := characters.New(client, settings, characters.Config{
		RefreshTimeout: config.Ms(cfg.Voice.CatalogTimeoutMs),
		Size:           cfg.Store.CacheSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating character cache: %s\n", err)
		os.Exit(1)
	}
	if cfg.Store.PersistCharacterCache {
		chars.SetSink(writer)
		seedCatalogs(chars, snap)
	}

	dispatcher := voice.NewDispatcher(client, voice.DispatcherConfig{
		MaxChars: cfg.Voice.MaxChars,
		Timeout:  config.Ms(cfg.Voice.DispatchTimeoutMs),
	})
	pl := pipeline.New(settings, chars, dispatcher, client, pipelineOptions(cfg.Pipeline))
	surface := commands.NewSurface(settings, chars, gateway.BusReplier{Bus: mb}, router)

	provider, err := providers.New(cfg.Provider.Type, cfg.Provider.APIKey, cfg.Provider.APIBase,
		cfg.Provider.Model, config.Ms(cfg.Provider.TimeoutMs))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating provider: %s\n", err)
		os.Exit(1)
	}
	if cfg.Provider.APIKey == "" {
		slog.Warn("provider api key is empty; set provider.apiKey or " + config.EnvProviderAPIKey)
	}

	limiter := gateway.NewRateLimiter(cfg.Gateway.GroupRPM, cfg.Gateway.GroupBurst)
	defer limiter.Stop()

	consumer := gateway.NewConsumer(gateway.ConsumerDeps{
		Bus:           mb,
		Router:        router,
		Commands:      surface,
		Pipeline:      pl,
		Provider:      provider,
		Limiter:       limiter,
		History:       gateway.NewPendingHistory(),
		MaxConcurrent: cfg.Gateway.MaxConcurrent,
	}, consumerOptions(cfg))

	if err := channel.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error starting OneBot channel: %s\n", err)
		os.Exit(1)
	}
	defer channel.Stop()

	// Hot reload of policies, triggers and limits.
	if watcher, err := config.NewWatcher(cfgPath, cfg); err != nil {
		slog.Warn("config watcher unavailable", "error", err)
	} else {
		watcher.OnChange(func(next *config.Config) {
			setupLogging(next.Logging)
			pl.SetOptions(pipelineOptions(next.Pipeline))
			router.SetTriggers(triggersFromConfig(next.Commands))
			limiter.SetLimits(next.Gateway.GroupRPM, next.Gateway.GroupBurst)
			consumer.SetOptions(consumerOptions(next))
			client.SetActionRate(next.OneBot.ActionRatePerSec)
		})
		if err := watcher.Start(); err != nil {
			slog.Warn("config watcher not started", "path", cfgPath, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	slog.Info("aivoice gateway running",
		"version", Version,
		"onebot", cfg.OneBot.WSURL,
		"provider", provider.Name(),
		"store", cfg.Store.Backend,
	)
	consumer.Run(ctx)

	slog.Info("shutting down")
	fctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := writer.Flush(fctx); err != nil {
		slog.Warn("settings flush incomplete", "error", err)
	}
	stats := collector.Stats()
	slog.Info("gateway stopped", "spans", stats.Spans, "span_errors", stats.Errors)
}

// seedCatalogs restores persisted catalog snapshots so groups can speak
// before their first refresh.
func seedCatalogs(chars *characters.Cache, snap *store.Snapshot) {
	seeded := 0
	for gid, raw := range snap.CharacterCache {
		cat, err := characters.DecodeCatalog(raw)
		if err != nil {
			slog.Warn("skipping unreadable catalog snapshot", "group", gid, "error", err)
			continue
		}
		chars.Seed(gid, cat)
		seeded++
	}
	if seeded > 0 {
		slog.Info("character catalogs restored", "groups", seeded)
	}
}

func onebotConfig(c config.OneBotConfig) onebot.Config {
	return onebot.Config{
		WSURL:             c.WSURL,
		AccessToken:       c.AccessToken,
		ReconnectInterval: config.Ms(c.ReconnectIntervalMs),
		ActionRate:        c.ActionRatePerSec,
	}
}

func triggersFromConfig(c config.CommandsConfig) commands.Triggers {
	return commands.Triggers{
		Prefix:         c.Prefix,
		ListCharacters: c.ListCharacters,
		ToggleSpeech:   c.ToggleSpeech,
		SetDefault:     c.SetDefault,
		ToggleCoSend:   c.ToggleCoSend,
		Help:           c.Help,
	}
}

func pipelineOptions(c config.PipelineConfig) pipeline.Options {
	return pipeline.Options{
		EmptyPolicy:  c.EmptyPolicy,
		Placeholder:  c.Placeholder,
		CoSendChain:  c.CoSendChain,
		SpeechPrompt: c.SpeechPrompt,
	}
}

func consumerOptions(cfg *config.Config) gateway.Options {
	return gateway.Options{
		RequireMention: cfg.Gateway.RequireMention,
		SystemPrompt:   cfg.Provider.SystemPrompt,
		Model:          cfg.Provider.Model,
		Temperature:    cfg.Provider.Temperature,
		HistoryLimit:   cfg.Gateway.HistoryLimit,
	}
}
