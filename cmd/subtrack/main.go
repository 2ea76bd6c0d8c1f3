package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/gosuda/subtrack/internal/bot"
	"github.com/gosuda/subtrack/internal/config"
	"github.com/gosuda/subtrack/internal/domain"
	"github.com/gosuda/subtrack/internal/ingest"
	"github.com/gosuda/subtrack/internal/messenger"
	"github.com/gosuda/subtrack/internal/messenger/slack"
	"github.com/gosuda/subtrack/internal/messenger/telegram"
	"github.com/gosuda/subtrack/internal/metrics"
	"github.com/gosuda/subtrack/internal/notify"
	"github.com/gosuda/subtrack/internal/report"
	"github.com/gosuda/subtrack/internal/scheduler"
	"github.com/gosuda/subtrack/internal/server"
	"github.com/gosuda/subtrack/internal/server/middleware"
	"github.com/gosuda/subtrack/internal/store/postgres"
	redisstore "github.com/gosuda/subtrack/internal/store/redis"
	"github.com/gosuda/subtrack/internal/store/sqlite"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run(args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}

	if len(args) > 0 && args[0] == "token" {
		return mintToken(cfg, args[1:])
	}
	return serve(cfg)
}

func setupLogging(lc config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if lc.Format == "console" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}

// mintToken prints a signed API token: subtrack token -sub ops -ttl 720h
func mintToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sub := fs.String("sub", "operator", "token subject")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cfg.Server.APIJWTSecret == "" {
		return errors.New("token: SUBTRACK_API_JWT_SECRET is not set")
	}

	token, err := middleware.MintToken(cfg.Server.APIJWTSecret, *sub, *ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, token)
	return err
}

type eventStore interface {
	domain.EventRepository
	Ping(ctx context.Context) error
	Close() error
}

// pgEventStore exposes the postgres audit repository together with the pool lifecycle.
type pgEventStore struct {
	*postgres.AuditRepo
	store *postgres.Store
}

func (s pgEventStore) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
func (s pgEventStore) Close() error                   { return s.store.Close() }

func openStore(ctx context.Context, cfg *config.Config) (eventStore, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}
		store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if err != nil {
			return nil, err
		}
		return pgEventStore{AuditRepo: store.Audit(), store: store}, nil
	default:
		return sqlite.New(ctx, cfg.Store.SQLitePath)
	}
}

func serve(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	loc := cfg.Report.Location

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info().Str("driver", cfg.Store.Driver).Msg("event store ready")

	m := metrics.New()
	ingestOpts := []ingest.Option{ingest.WithRecorder(m)}

	deps := server.Deps{
		Metrics: m.Handler(),
		Health:  store,
	}

	// Redis is optional; without it the live event feed is off.
	if cfg.Redis.Addr != "" {
		pubsub, psErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if psErr != nil {
			return psErr
		}
		defer pubsub.Close()
		ingestOpts = append(ingestOpts, ingest.WithPublisher(pubsub))
		deps.PubSub = pubsub
	}

	tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.PollTimeout)
	if err != nil {
		return fmt.Errorf("telegram client: %w", err)
	}
	tgMessenger := telegram.NewTelegramMessenger(tgClient)
	log.Info().Bool("dry_run", tgClient.DryRun()).Str("username", tgClient.Username()).Msg("telegram client ready")

	messengers := []messenger.Messenger{tgMessenger}
	var slackMessenger *slack.SlackMessenger
	if cfg.Slack.BotToken != "" {
		slackMessenger = slack.NewSlackMessenger(slack.NewClient(cfg.Slack.BotToken))
		messengers = append(messengers, slackMessenger)
	}
	registry := notify.NewRegistry(messengers...)
	notifier := notify.New(registry, notify.WithRecorder(m))
	log.Info().Strs("platforms", registry.Platforms()).Msg("messengers registered")

	reports := report.NewAggregator(store)
	ingestor := ingest.New(store, loc, ingestOpts...)

	sched, err := scheduler.New(reports, notifier, scheduler.Config{
		Location:   loc,
		Hour:       cfg.Report.Hour,
		Minute:     cfg.Report.Minute,
		Label:      cfg.Report.Label,
		Recipients: cfg.Report.Recipients,
	}, scheduler.WithRecorder(m))
	if err != nil {
		return err
	}

	botOpts := []bot.Option{
		bot.WithRecorder(m),
		bot.WithBotName(tgClient.Username()),
	}
	if cfg.Report.AdminOnly {
		botOpts = append(botOpts, bot.WithAllowedChats(cfg.Report.TelegramChatIDs()))
	}
	handler := bot.NewHandler(reports, loc, cfg.Report.Label, botOpts...)

	if cfg.Slack.SigningSecret != "" {
		slackOpts := []slack.HandlerOption{slack.WithAppCommand(cfg.Slack.AppCommand)}
		if slackMessenger != nil {
			slackOpts = append(slackOpts, slack.WithPoster(slackMessenger))
		}
		if cfg.Report.AdminOnly {
			slackOpts = append(slackOpts, slack.WithAllowedChannels(cfg.Report.SlackChannelIDs()))
		}
		deps.Slack = slack.NewHandler(cfg.Slack.SigningSecret, handler, slackOpts...)
	}

	deps.Ingestor = ingestor
	deps.Reports = reports
	deps.Trigger = sched
	srv := server.New(ctx, cfg, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error { return tgClient.Start(gctx, handler.Telegram(tgMessenger)) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}
