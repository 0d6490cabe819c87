package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/deskwing/deskwing/internal/config"
	"github.com/deskwing/deskwing/internal/conversation"
	"github.com/deskwing/deskwing/internal/customer"
	"github.com/deskwing/deskwing/internal/db"
	"github.com/deskwing/deskwing/internal/escalation"
	"github.com/deskwing/deskwing/internal/events"
	"github.com/deskwing/deskwing/internal/formatter"
	"github.com/deskwing/deskwing/internal/handlers"
	"github.com/deskwing/deskwing/internal/healthcheck"
	"github.com/deskwing/deskwing/internal/ingest"
	"github.com/deskwing/deskwing/internal/knowledge"
	"github.com/deskwing/deskwing/internal/logger"
	"github.com/deskwing/deskwing/internal/message"
	"github.com/deskwing/deskwing/internal/metrics"
	"github.com/deskwing/deskwing/internal/pipeline"
	"github.com/deskwing/deskwing/internal/responder"
	"github.com/deskwing/deskwing/internal/sentiment"
	"github.com/deskwing/deskwing/internal/server"
	"github.com/deskwing/deskwing/internal/ticket"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideCustomerService,
			provideConversationService,
			provideMessageService,
			provideTicketService,
			provideKnowledgeBase,
			providePolicy,
			provideFormatter,
			provideResponderClient,
			provideProducer,
			provideCollector,
			provideReporter,
			providePipeline,
			provideConsumer,
			provideHealthCheckers,
			providePingHandler,
			provideIngestHandler,
			provideConversationHandler,
			provideTicketHandler,
			provideServer,
		),
		fx.Invoke(
			startMetricsReporter,
			startConsumer,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideCustomerService(log *slog.Logger, conn *pgxpool.Pool) *customer.Service {
	return customer.NewService(log, conn)
}

func provideConversationService(log *slog.Logger, conn *pgxpool.Pool, cfg config.Config) *conversation.Service {
	return conversation.NewService(log, conn, cfg.Pipeline.ConversationWindow())
}

func provideMessageService(log *slog.Logger, conn *pgxpool.Pool) *message.Service {
	return message.NewService(log, conn)
}

func provideTicketService(log *slog.Logger, conn *pgxpool.Pool) *ticket.Service {
	return ticket.NewService(log, conn)
}

func provideKnowledgeBase(log *slog.Logger, cfg config.Config) (*knowledge.Base, error) {
	return knowledge.Load(cfg.Knowledge.FAQPath, log)
}

func providePolicy(cfg config.Config) *escalation.Policy {
	return escalation.NewPolicy(
		cfg.Pipeline.SentimentThreshold,
		cfg.Pipeline.MinTurnsForSentiment,
		cfg.Pipeline.KnowledgeGapThreshold,
	)
}

func provideFormatter(cfg config.Config) *formatter.Formatter {
	return formatter.New(
		cfg.Pipeline.ChatCharBudget,
		cfg.Pipeline.EmailWordBudget,
		cfg.Pipeline.WebFormWordBudget,
	)
}

func provideResponderClient(log *slog.Logger, cfg config.Config) *responder.Client {
	return responder.NewClient(cfg.Responder.BaseURL, cfg.Responder.Timeout(), log)
}

func provideProducer(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *events.Producer {
	producer := events.NewProducer(
		cfg.Kafka.Brokers,
		cfg.Kafka.EscalationsTopic,
		cfg.Kafka.DeadLetterTopic,
		cfg.Kafka.MetricsTopic,
		log,
	)
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { return producer.Close() }})
	return producer
}

func provideCollector(log *slog.Logger) *metrics.Collector {
	return metrics.NewCollector(log)
}

func provideReporter(log *slog.Logger, cfg config.Config, collector *metrics.Collector, producer *events.Producer) *metrics.Reporter {
	interval := time.Duration(cfg.Pipeline.MetricsIntervalMinutes) * time.Minute
	return metrics.NewReporter(collector, producer, interval, log)
}

func providePipeline(
	log *slog.Logger,
	cfg config.Config,
	customers *customer.Service,
	convs *conversation.Service,
	messages *message.Service,
	tickets *ticket.Service,
	kb *knowledge.Base,
	policy *escalation.Policy,
	respond *responder.Client,
	format *formatter.Formatter,
	producer *events.Producer,
	collector *metrics.Collector,
) *pipeline.Pipeline {
	return pipeline.New(
		log,
		customers,
		convs,
		messages,
		tickets,
		kb,
		policy,
		respond,
		format,
		producer,
		collector,
		func(text string) float64 { return sentiment.Score(text).Score },
		pipeline.Options{
			RetryAttempts:          cfg.Pipeline.StorageRetryAttempts,
			RetryBackoff:           cfg.Pipeline.StorageRetryBackoff(),
			ResponderRetryAttempts: cfg.Responder.RetryAttempts,
			KnowledgeMaxResults:    cfg.Knowledge.MaxResults,
		},
	)
}

func provideConsumer(log *slog.Logger, cfg config.Config, p *pipeline.Pipeline) *ingest.Consumer {
	return ingest.NewConsumer(
		cfg.Kafka.Brokers,
		cfg.Kafka.IncomingTopic,
		cfg.Kafka.ConsumerGroup,
		p,
		log,
	)
}

func provideHealthCheckers(cfg config.Config, conn *pgxpool.Pool) []healthcheck.Checker {
	return []healthcheck.Checker{
		healthcheck.NewPostgresChecker(conn),
		healthcheck.NewKafkaChecker(cfg.Kafka.Brokers),
	}
}

func providePingHandler(log *slog.Logger, checkers []healthcheck.Checker) *handlers.PingHandler {
	return handlers.NewPingHandler(log, checkers)
}

func provideIngestHandler(log *slog.Logger, p *pipeline.Pipeline) *handlers.IngestHandler {
	return handlers.NewIngestHandler(log, p)
}

func provideConversationHandler(log *slog.Logger, convs *conversation.Service, messages *message.Service) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(log, convs, messages)
}

func provideTicketHandler(log *slog.Logger, tickets *ticket.Service) *handlers.TicketHandler {
	return handlers.NewTicketHandler(log, tickets)
}

func provideServer(cfg config.Config, pingHandler *handlers.PingHandler, ingestHandler *handlers.IngestHandler, conversationHandler *handlers.ConversationHandler, ticketHandler *handlers.TicketHandler) *server.Server {
	return server.NewServer(cfg.Server.Addr, cfg.Auth.JWTSecret, pingHandler, ingestHandler, conversationHandler, ticketHandler)
}

func startMetricsReporter(lc fx.Lifecycle, reporter *metrics.Reporter) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return reporter.Start() },
		OnStop:  func(ctx context.Context) error { reporter.Stop(); return nil },
	})
}

func startConsumer(lc fx.Lifecycle, logger *slog.Logger, consumer *ingest.Consumer, shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := consumer.Run(ctx); err != nil {
					logger.Error("consumer failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			return consumer.Close()
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
