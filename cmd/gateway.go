package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/deskbot/internal/agent"
	"github.com/nextlevelbuilder/deskbot/internal/bus"
	"github.com/nextlevelbuilder/deskbot/internal/channels"
	"github.com/nextlevelbuilder/deskbot/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/deskbot/internal/commands"
	"github.com/nextlevelbuilder/deskbot/internal/config"
	"github.com/nextlevelbuilder/deskbot/internal/cron"
	"github.com/nextlevelbuilder/deskbot/internal/delay"
	"github.com/nextlevelbuilder/deskbot/internal/gateway"
	"github.com/nextlevelbuilder/deskbot/internal/holidays"
	"github.com/nextlevelbuilder/deskbot/internal/hours"
	"github.com/nextlevelbuilder/deskbot/internal/sessions"
	"github.com/nextlevelbuilder/deskbot/internal/tracing"
	"github.com/nextlevelbuilder/deskbot/pkg/protocol"
)

const shutdownTimeout = 10 * time.Second

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose || strings.EqualFold(os.Getenv("DESKBOT_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runGateway(ctx context.Context) error {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "path", cfgPath, "error", err)
		return err
	}
	if !cfg.HasProvider() {
		err := errors.New("no OpenAI API key configured (set DESKBOT_OPENAI_API_KEY or providers.openai.api_key)")
		slog.Error("cannot start gateway", "error", err)
		return err
	}
	if !cfg.Channels.WhatsApp.Enabled {
		return errors.New("whatsapp channel is disabled, nothing to serve")
	}
	cfg.RenderSystemPrompt()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}()

	// Core state
	msgBus := bus.New()
	store := sessions.NewStore(cfg.SessionSettings().MaxTurns, cfg.SystemPrompt)
	notified := sessions.NewNotifiedStore()

	// Holidays and business hours
	airtable := holidays.NewAirtable(cfg.Schedule.Airtable, cfg.Location())
	holidayCache := holidays.NewCache(airtable)
	if !airtable.Configured() {
		slog.Warn("airtable not configured, holidays will not be applied")
	}
	gate := hours.NewGate(cfg, holidayCache)

	// Channel
	channelMgr := channels.NewManager()
	wa, err := whatsapp.New(cfg.Channels.WhatsApp, msgBus)
	if err != nil {
		return fmt.Errorf("whatsapp channel: %w", err)
	}
	wa.OnReady(func() { logStartupSummary(cfg) })
	channelMgr.RegisterChannel(whatsapp.ChannelName, wa)

	// Reply pipeline
	orc := agent.New(ctx, agent.Options{
		Config:   cfg,
		Gate:     gate,
		Sessions: store,
		Notified: notified,
		Delays:   delay.New(cfg.DelaySettings(), nil),
		Provider: newProvider(cfg),
		Sender:   channelMgr,
		Channel:  whatsapp.ChannelName,
	})
	defer orc.Stop()

	dispatcherOpts := commands.Options{
		Config:   cfg,
		Gate:     gate,
		Chats:    orc,
		Sessions: store,
		Notified: notified,
	}
	if airtable.Configured() {
		dispatcherOpts.Holidays = holidayCache
	}
	router := gateway.NewRouter(gateway.Options{
		Config:    cfg,
		Customers: orc,
		Commands:  commands.New(dispatcherOpts),
		Sender:    channelMgr,
	})

	runner := cron.NewRunner()
	if err := registerCronJobs(runner, cfg, store, notified, holidayCache, gate, airtable.Configured()); err != nil {
		return err
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		return fmt.Errorf("start channels: %w", err)
	}

	slog.Info("deskbot gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"bridge", cfg.Channels.WhatsApp.BridgeURL,
		"bot_enabled", cfg.Enabled(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return router.Run(gctx, msgBus) })
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return channelMgr.StopAll(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("gateway stopped with error", "error", err)
		return err
	}
	slog.Info("gateway stopped")
	return nil
}

// logStartupSummary runs once, when the bridge first reports a ready session.
func logStartupSummary(cfg *config.Config) {
	ops := cfg.OperatorSettings()
	start, end := cfg.Hours()
	ai := cfg.AISettings()

	slog.Info("whatsapp client connected and ready",
		"operators", strings.Join(ops.IDs, ","),
		"test_number", ops.TestNumber,
		"command_group", ops.CommandGroup,
		"model", ai.Model,
		"hours", fmt.Sprintf("%d:00-%d:00", start, end),
		"days", cfg.BusinessDays(),
	)
	if !cfg.Enabled() {
		slog.Warn("bot is paused, send !activar in the command group to start answering customers")
	}
}
