package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"guardbot/internal/bannedterms"
	"guardbot/internal/bans"
	"guardbot/internal/config"
	"guardbot/internal/domain"
	"guardbot/internal/gateway"
	"guardbot/internal/genai"
	"guardbot/internal/handler"
	"guardbot/internal/metrics"
	"guardbot/internal/ratewindow"
	"guardbot/internal/remediation"
	"guardbot/internal/repository"
	"guardbot/internal/service"
	"guardbot/internal/transport/events"

	"github.com/bwmarrin/discordgo"
)

const (
	exemptCacheSize = 4096
	shutdownTimeout = 10 * time.Second
)

// Intents are the gateway subscriptions the bot needs.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildPresences

type EventHandler interface {
	HandleEvent(ctx context.Context, ev any)
}

type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	session *discordgo.Session
}

func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = Intents
	session.SyncEvents = true
	session.StateEnabled = true

	return &App{
		cfg:     cfg,
		logger:  logger,
		session: session,
	}, nil
}

// NewGenAIChain builds the credential fallback chain from the configured keys.
func NewGenAIChain(cfg *config.Config, logger *slog.Logger) *genai.Chain {
	httpClient := genai.NewHTTPClient(logger)
	return genai.NewChainFromCredentials(logger, cfg.Credentials(), func(key string) genai.Generator {
		return genai.NewClient(key,
			genai.WithBaseURL(cfg.GeminiBaseURL),
			genai.WithModel(cfg.GeminiModel),
			genai.WithHTTPClient(httpClient),
		)
	})
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.logger.Info("Starting guardbot")

	gw := gateway.NewDiscord(a.session)

	var sinks []remediation.AuditSink
	if a.cfg.AuditChannelID != "" {
		sinks = append(sinks, gateway.NewAuditChannel(gw, domain.ChannelID(a.cfg.AuditChannelID)))
	}
	if a.cfg.DatabaseURL != "" {
		db, err := repository.OpenDB(a.cfg.DatabaseURL, a.cfg.EnableTelemetry)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		sinks = append(sinks, repository.NewAuditRepository(db))
	}

	executor := remediation.NewExecutor(a.logger, gw, remediation.Config{
		Window:     a.cfg.RateWindow,
		WarningTTL: a.cfg.WarningTTL,
	}, remediation.WithAuditSinks(sinks...))
	scheduler := bans.NewScheduler(a.logger, gw, bans.WithMaxDuration(a.cfg.MaxBanDuration))

	chain := NewGenAIChain(a.cfg, a.logger)
	if chain.Len() == 0 {
		a.logger.Warn("No generation credentials configured, chat replies are disabled")
	} else {
		a.logger.Info("Generation credentials loaded", "slots", chain.Labels())
	}

	svc := service.NewModerationService(a.logger, service.Components{
		Tracker:           ratewindow.NewTracker(a.cfg.RateWindow, a.cfg.RateMaxMessages),
		Terms:             bannedterms.New(a.cfg.BannedTerms...),
		Bans:              scheduler,
		Remediator:        executor,
		Chain:             chain,
		Permissions:       service.NewExemptCache(gw, exemptCacheSize, a.cfg.ExemptCacheTTL),
		AskLimiter:        service.NewAskLimiter(a.cfg.AskLimit, a.cfg.AskWindow),
		SystemInstruction: a.cfg.GeminiSystemInstruction,
	})
	svc.StartMetricsUpdater(ctx)
	svc.StartJanitor(ctx, a.cfg.RateWindow)
	h := handler.NewHandler(a.logger, svc, gw, a.cfg)

	listener := events.NewListener(a.logger, a.session, 0)

	metricsSrv := metrics.NewServer(a.logger, a.cfg.ListenAddr(), listener.Ready)
	go func() {
		if err := metricsSrv.Listen(); err != nil {
			a.logger.Error("Metrics server failed", "error", err)
		}
	}()

	updates, err := listener.Start(ctx)
	if err != nil {
		a.shutdown(h, svc, executor, metricsSrv)
		return err
	}

	RunLoop(ctx, a.logger, h, updates)

	a.logger.Info("Shutting down...")
	a.shutdown(h, svc, executor, metricsSrv)
	return nil
}

func (a *App) shutdown(h *handler.Handler, svc service.Service, executor *remediation.Executor, srv *metrics.Server) {
	h.Wait()
	svc.Shutdown()
	executor.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Metrics server shutdown failed", "error", err)
	}
}

// RunLoop handles events one at a time until the channel is closed. A panic
// in one event is logged and does not stop the loop.
func RunLoop(ctx context.Context, logger *slog.Logger, h EventHandler, updates <-chan any) {
	for ev := range updates {
		handleSafely(ctx, logger, h, ev)
	}
}

func handleSafely(ctx context.Context, logger *slog.Logger, h EventHandler, ev any) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Event handler panicked",
				"type", fmt.Sprintf("%T", ev),
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	h.HandleEvent(ctx, ev)
}
