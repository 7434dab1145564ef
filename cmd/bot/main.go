package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"guardbot/internal/app"
	"guardbot/internal/config"
	"guardbot/internal/domain"
	"guardbot/internal/genai"
	"guardbot/internal/repository"
	"guardbot/pkg/telemetry"

	"github.com/carlmjohnson/versioninfo"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args, os.Stdout); err != nil {
		slog.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load()

	cliApp := cli.App{
		Name:    "guardbot",
		Usage:   "chat moderation bot",
		Version: versioninfo.Short(),
		Writer:  out,
	}
	cliApp.Commands = []*cli.Command{
		runCmd,
		askCmd,
		credentialsCmd,
		auditCmd,
	}
	return cliApp.Run(args)
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "connect to the gateway and moderate",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(os.Stdout, cfg.SlogLevel())

		if cfg.EnableTelemetry {
			shutdown, err := telemetry.InitTracer(cctx.Context, "guardbot", versioninfo.Short(), cfg.OTLPEndpoint, os.Stderr)
			if err != nil {
				logger.Error("Failed to init telemetry", "error", err)
			} else {
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(ctx); err != nil {
						logger.Error("Failed to shutdown telemetry", "error", err)
					}
				}()
			}
		}

		application, err := app.NewApp(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		return application.Run(cctx.Context)
	},
}

var askCmd = &cli.Command{
	Name:      "ask",
	Usage:     "send one prompt through the credential fallback chain",
	ArgsUsage: "<prompt>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "system",
			Usage: "override the system instruction",
		},
	},
	Action: func(cctx *cli.Context) error {
		prompt := strings.TrimSpace(strings.Join(cctx.Args().Slice(), " "))
		if prompt == "" {
			return cli.Exit("a prompt is required", 2)
		}
		cfg, err := config.LoadOfflineConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger := newLogger(os.Stderr, cfg.SlogLevel())

		chain := app.NewGenAIChain(cfg, logger)
		if chain.Len() == 0 {
			return genai.ErrNoCredentials
		}
		system := cfg.GeminiSystemInstruction
		if s := cctx.String("system"); s != "" {
			system = s
		}

		res, err := chain.Try(cctx.Context, genai.Request{Prompt: prompt, SystemInstruction: system})
		if err != nil {
			var exhausted *genai.ExhaustedError
			if errors.As(err, &exhausted) {
				for _, a := range exhausted.Attempts {
					logger.Warn("Credential failed", "credential", a.Label, "outcome", a.Outcome.String(), "error", a.Err)
				}
			}
			return err
		}
		logger.Info("Answered", "credential", res.Label, "attempts", len(res.Attempts))
		fmt.Fprintln(cctx.App.Writer, res.Text)
		return nil
	},
}

var credentialsCmd = &cli.Command{
	Name:  "credentials",
	Usage: "show which generation credential slots are configured",
	Action: func(cctx *cli.Context) error {
		cfg, err := config.LoadOfflineConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "ORDER\tSLOT\tSTATUS\n")
		for i, c := range cfg.Credentials() {
			status := "missing"
			if c.Key != "" {
				status = "set"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, c.Label, status)
		}
		fmt.Fprintf(w, "\nmodel: %s\n", cfg.GeminiModel)
		return w.Flush()
	},
}

var auditCmd = &cli.Command{
	Name:  "audit",
	Usage: "print recent remediation records from DATABASE_URL",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "scope",
			Usage: "only records for this server",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: 20,
		},
		&cli.StringFlag{
			Name:  "actor",
			Usage: "also count records for this user",
		},
		&cli.DurationFlag{
			Name:  "since",
			Value: 24 * time.Hour,
			Usage: "window for --actor",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := config.LoadOfflineConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.DatabaseURL == "" {
			return cli.Exit("DATABASE_URL is not set", 2)
		}
		newLogger(os.Stderr, cfg.SlogLevel())

		db, err := repository.OpenDB(cfg.DatabaseURL, false)
		if err != nil {
			return err
		}
		repo := repository.NewAuditRepository(db)

		records, err := repo.Recent(cctx.Context, domain.ScopeID(cctx.String("scope")), cctx.Int("limit"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cctx.App.Writer, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "AT\tRULE\tSCOPE\tCHANNEL\tUSER\tDELETED\tEVIDENCE\n")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				r.At.UTC().Format(time.RFC3339), r.Rule, r.Scope, r.Channel, r.Actor, r.Deleted, r.Evidence)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if actor := cctx.String("actor"); actor != "" {
			since := time.Now().Add(-cctx.Duration("since"))
			n, err := repo.CountSince(cctx.Context, domain.ActorID(actor), since)
			if err != nil {
				return err
			}
			fmt.Fprintf(cctx.App.Writer, "\n%s: %d violations since %s\n", actor, n, since.UTC().Format(time.RFC3339))
		}
		return nil
	},
}
