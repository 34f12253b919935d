package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/symptom-intake/internal/archive"
	"github.com/wolfman30/symptom-intake/internal/availability"
	"github.com/wolfman30/symptom-intake/internal/catalog"
	"github.com/wolfman30/symptom-intake/internal/compliance"
	appconfig "github.com/wolfman30/symptom-intake/internal/config"
	"github.com/wolfman30/symptom-intake/internal/dispatch"
	"github.com/wolfman30/symptom-intake/internal/events"
	"github.com/wolfman30/symptom-intake/internal/intake"
	"github.com/wolfman30/symptom-intake/internal/observability/metrics"
	"github.com/wolfman30/symptom-intake/internal/session"
	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// Runtime holds the wired intake components shared by the HTTP server and
// the Lambda entrypoint.
type Runtime struct {
	Catalog    catalog.Store
	Service    *intake.Service
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.IntakeMetrics
	Checks     map[string]func(ctx context.Context) error

	deliverer *events.Deliverer
	closers   []func() error
	logger    *logging.Logger
}

// Option adjusts the runtime before the dispatcher is built.
type Option func(*buildOptions)

type buildOptions struct {
	listener dispatch.ResultListener
}

// WithResultListener forwards queued turn results, e.g. to live chats.
func WithResultListener(l dispatch.ResultListener) Option {
	return func(o *buildOptions) { o.listener = l }
}

// BuildRuntime wires every backend selected by cfg.
func BuildRuntime(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, reg prometheus.Registerer, logger *logging.Logger, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}

	rt := &Runtime{
		Metrics: metrics.NewIntakeMetrics(reg),
		Checks:  map[string]func(ctx context.Context) error{},
		logger:  logger,
	}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	db, err := OpenDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	var pool *pgxpool.Pool
	if db != nil {
		rt.closers = append(rt.closers, db.Close)
		rt.Checks["postgres"] = db.PingContext
		if pool, err = OpenPool(ctx, cfg.DatabaseURL); err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, func() error { pool.Close(); return nil })
	}

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		rt.closers = append(rt.closers, redisClient.Close)
		rt.Checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if rt.Catalog, err = BuildCatalog(cfg, db, redisClient, logger); err != nil {
		return fail(err)
	}

	store, err := buildSessionStore(cfg, awsCfg, redisClient, logger)
	if err != nil {
		return fail(err)
	}

	model, closeModel, err := BuildModel(ctx, cfg, awsCfg, rt.Metrics, logger)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, closeModel)

	engine := buildEngine(cfg, rt.Catalog, model, pool, logger)
	svcOpts, err := rt.sideEffects(cfg, awsCfg, db, pool, logger)
	if err != nil {
		return fail(err)
	}
	rt.Service = intake.NewService(engine, store, logger, append(svcOpts, intake.WithMetrics(rt.Metrics))...)

	dispatchOpts := []dispatch.Option{
		dispatch.WithWorkers(cfg.WorkerCount),
		dispatch.WithDepthGauge(rt.Metrics),
		dispatch.WithRetryable(func(err error) bool {
			return errors.Is(err, triage.ErrCatalogUnavailable) || errors.Is(err, intake.ErrUnavailable)
		}),
	}
	switch {
	case cfg.TurnQueueURL != "":
		dispatchOpts = append(dispatchOpts, dispatch.WithQueue(dispatch.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TurnQueueURL)))
		logger.Info("async turns enabled", "queue", "sqs")
	case cfg.UseMemoryQueue:
		dispatchOpts = append(dispatchOpts, dispatch.WithQueue(dispatch.NewMemoryQueue(256)), dispatch.WithReceiveWait(1))
		logger.Info("async turns enabled", "queue", "memory")
	}
	if bo.listener != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithResultListener(bo.listener))
	}
	rt.Dispatcher = dispatch.New(rt.Service, logger, dispatchOpts...)
	return rt, nil
}

// Start launches background workers. They stop when ctx is cancelled.
func (rt *Runtime) Start(ctx context.Context) {
	rt.Dispatcher.Start(ctx)
	if rt.deliverer != nil {
		go rt.deliverer.Start(ctx)
	}
}

// Close releases clients in reverse order of creation.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func buildSessionStore(cfg *appconfig.Config, awsCfg aws.Config, redisClient *redis.Client, logger *logging.Logger) (session.Store, error) {
	switch cfg.SessionBackend {
	case "redis":
		if redisClient == nil {
			return nil, errors.New("bootstrap: SESSION_BACKEND=redis requires a reachable REDIS_ADDR")
		}
		return session.NewRedisStore(redisClient, cfg.SessionTTL), nil
	case "dynamodb":
		return session.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.SessionTable, cfg.SessionTTL, logger), nil
	case "", "memory":
		logger.Warn("sessions are kept in process memory")
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

func buildEngine(cfg *appconfig.Config, rules triage.Catalog, model triage.Model, pool *pgxpool.Pool, logger *logging.Logger) *triage.Engine {
	var calendar triage.Availability
	if pool != nil {
		calendar = availability.NewPostgresCalendar(pool)
	} else {
		calendar = availability.NewMemoryCalendar(availability.DefaultDoctors()...)
	}
	planner := triage.NewBookingPlanner(calendar, logger,
		triage.WithLocation(cfg.ClinicLocation()),
		triage.WithSearchDays(cfg.SlotSearchDays),
	)
	opts := []triage.EngineOption{
		triage.WithBookingPlanner(planner),
		triage.WithMaxQuestions(cfg.MaxQuestionsPerSymptom),
		triage.WithModelTimeout(cfg.ModelTimeout),
		triage.WithClassifier(triage.NewPriorityClassifier(cfg.UrgentPhrases, cfg.HighPriorityPhrases)),
	}
	if model != nil {
		opts = append(opts, triage.WithModel(model))
	}
	return triage.NewEngine(rules, logger, opts...)
}

// sideEffects wires audit, disclaimer, archive and emergency delivery.
func (rt *Runtime) sideEffects(cfg *appconfig.Config, awsCfg aws.Config, db *sql.DB, pool *pgxpool.Pool, logger *logging.Logger) ([]intake.Option, error) {
	var opts []intake.Option

	var audit *compliance.AuditService
	if db != nil {
		audit = compliance.NewAuditService(db)
		opts = append(opts, intake.WithAuditor(audit))
	}
	if level := compliance.ParseDisclaimerLevel(cfg.DisclaimerLevel); level != compliance.DisclaimerNone {
		opts = append(opts, intake.WithDisclaimer(compliance.NewDisclaimerService(audit, level)))
	}

	if cfg.ArchiveBucket != "" {
		opts = append(opts, intake.WithArchiver(archive.NewStore(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, logger)))
	}

	if pool == nil {
		opts = append(opts, intake.WithEmergencySink(events.NewLogSink(logger)))
		return opts, nil
	}
	outbox := events.NewOutboxStore(pool)
	opts = append(opts, intake.WithEmergencySink(events.NewOutboxSink(outbox, logger)))
	if cfg.AMQPURL == "" {
		logger.Warn("AMQP_URL not set; emergency events stay in the outbox")
		return opts, nil
	}
	publisher, closeAMQP, err := events.DialAMQP(cfg.AMQPURL, cfg.EmergencyExchange)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: amqp: %w", err)
	}
	rt.closers = append(rt.closers, closeAMQP)
	rt.deliverer = events.NewDeliverer(outbox, publisher, logger).WithInterval(cfg.OutboxPollInterval)
	return opts, nil
}
