package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	alarmapp "telemetry-alarms/internal/alarms/application"
	alarms "telemetry-alarms/internal/alarms/domain"
	alarmrepo "telemetry-alarms/internal/alarms/infrastructure/postgres"
	alarminterfaces "telemetry-alarms/internal/alarms/interfaces"
	alarmhttp "telemetry-alarms/internal/alarms/interfaces/http"
	alarmnotify "telemetry-alarms/internal/alarms/notify"
	"telemetry-alarms/internal/audit"
	"telemetry-alarms/internal/eventing"
	eventingrepo "telemetry-alarms/internal/eventing/infrastructure/postgres"
	masterdata "telemetry-alarms/internal/masterdata/domain"
	catalogfile "telemetry-alarms/internal/masterdata/infrastructure/file"
	"telemetry-alarms/internal/observability/metrics"
	"telemetry-alarms/internal/simulator"
	telemetryapp "telemetry-alarms/internal/telemetry/application"
	"telemetry-alarms/internal/telemetry/infrastructure/memory"
	telemetryhttp "telemetry-alarms/internal/telemetry/interfaces/http"
)

type config struct {
	HTTPAddr                string
	LogLevel                string
	CatalogPath             string
	DatabaseURL             string
	AuditLogPath            string
	HistoryRetention        time.Duration
	HistoryMaxPoints        int
	QueueWorkers            int
	QueueBuffer             int
	QueueMaxAttempts        int
	DefaultPriority         string
	AlarmWebhookURL         string
	AlarmNotifyTemplate     string
	AlarmEscalationAfter    time.Duration
	AlarmNotifyCooldown     time.Duration
	AlarmNotifyDedupeWindow time.Duration
	AlarmNotifyTimeout      time.Duration
	NotifyBuffer            int
	SimulatorInterval       time.Duration
	SimulatorInvalidRatio   float64
}

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	catalog, rules, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load device catalog")
	}
	logger.Info().Int("devices", catalog.Len()).Int("rules", rules.Len()).Msg("device catalog loaded")

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = openDB(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db open error")
		}
		defer db.Close()
	}

	metrics.Init()

	// Snapshot store.
	var (
		ruleRepo   *alarmrepo.RuleRepository
		ticketRepo *alarmrepo.TicketRepository
		auditRepo  *audit.Repository
		processed  eventing.ProcessedStore = eventing.NewMemoryProcessedStore(0)
		dlq        eventing.DLQStore       = eventing.NewMemoryDLQ(0)
	)
	if db != nil {
		ruleRepo = alarmrepo.NewRuleRepository(db)
		ticketRepo = alarmrepo.NewTicketRepository(db)
		auditRepo = audit.NewRepository(db)
		processedRepo := eventingrepo.NewProcessedStore(db)
		dlqRepo := eventingrepo.NewDLQStore(db)
		if err := ensureSchemas(ruleRepo, ticketRepo, auditRepo, processedRepo, dlqRepo); err != nil {
			logger.Fatal().Err(err).Msg("ensure schema")
		}
		processed, dlq = processedRepo, dlqRepo

		stored, ok, err := ruleRepo.Load(context.Background())
		if err != nil {
			logger.Fatal().Err(err).Msg("load stored rules")
		}
		if ok {
			rules = stored
			logger.Info().Int("rules", rules.Len()).Msg("stored rules override catalog defaults")
		} else if err := ruleRepo.Replace(context.Background(), rules); err != nil {
			logger.Fatal().Err(err).Msg("seed rules")
		}
	}

	var ruleOpts []alarmapp.RuleStoreOption
	if ruleRepo != nil {
		ruleOpts = append(ruleOpts, alarmapp.WithRuleWriter(ruleRepo))
	}
	ruleStore := alarmapp.NewRuleStore(rules, ruleOpts...)

	registry := alarmapp.NewRegistry(alarmapp.WithDefaultPriority(cfg.DefaultPriority))
	if ticketRepo != nil {
		tickets, err := ticketRepo.List(context.Background())
		if err != nil {
			logger.Fatal().Err(err).Msg("load stored tickets")
		}
		if err := registry.Restore(tickets); err != nil {
			logger.Fatal().Err(err).Msg("restore tickets")
		}
		logger.Info().Int("tickets", registry.Len()).Msg("tickets restored")
	}

	history := memory.NewHistoryBuffer(
		memory.WithRetention(cfg.HistoryRetention),
		memory.WithMaxPoints(cfg.HistoryMaxPoints),
	)

	// Message log.
	ring := audit.NewRing(0)
	sinks := audit.MultiLogger{ring}
	var csvLog *audit.CSVLog
	if cfg.AuditLogPath != "" && cfg.AuditLogPath != "-" {
		csvLog, err = audit.OpenCSVLog(cfg.AuditLogPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.AuditLogPath).Msg("open message log")
		}
		sinks = append(sinks, csvLog)
	}
	if auditRepo != nil {
		sinks = append(sinks, auditRepo)
	}
	recorder, err := audit.NewRecorder(sinks)
	if err != nil {
		logger.Fatal().Err(err).Msg("message log recorder")
	}

	// Notifications.
	broker := alarmhttp.NewSSEBroker()
	notifiers := []alarmapp.Notifier{broker}
	if ticketRepo != nil {
		persister, err := alarmnotify.NewTicketPersister(ticketRepo, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("ticket persister")
		}
		notifiers = append(notifiers, persister)
	}
	var webhookNotifier *alarmnotify.Notifier
	if cfg.AlarmWebhookURL != "" {
		webhookNotifier, err = buildWebhookNotifier(cfg, registry, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("alarm notifier")
		}
		notifiers = append(notifiers, webhookNotifier)
	} else {
		notifiers = append(notifiers, alarmnotify.NewLogNotifier(logger))
	}
	asyncNotifier := alarmnotify.NewAsyncNotifier(alarmnotify.NewMultiNotifier(notifiers...), cfg.NotifyBuffer, logger)
	go asyncNotifier.Run(context.Background())

	pipeline, err := alarmapp.NewPipeline(catalog, ruleStore, registry,
		alarmapp.WithHistory(history),
		alarmapp.WithRecorder(recorder),
		alarmapp.WithNotifier(asyncNotifier),
		alarmapp.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest pipeline")
	}
	service, err := alarmapp.NewService(ruleStore, registry,
		alarmapp.WithServiceNotifier(asyncNotifier),
		alarmapp.WithServiceLogger(logger),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("alarm service")
	}

	// Queue transport.
	queue := eventing.NewQueue(
		eventing.WithShards(cfg.QueueWorkers),
		eventing.WithBuffer(cfg.QueueBuffer),
		eventing.WithMaxAttempts(cfg.QueueMaxAttempts),
		eventing.WithDLQ(dlq),
		eventing.WithQueueLogger(logger),
	)
	consumer, err := alarminterfaces.NewTelemetryConsumer(pipeline, alarminterfaces.WithConsumerLogger(logger))
	if err != nil {
		logger.Fatal().Err(err).Msg("telemetry consumer")
	}
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		queue.Run(context.Background(), alarminterfaces.ConsumerName,
			eventing.WrapHandler(alarminterfaces.ConsumerName, consumer.Handle, processed))
	}()
	publisher, err := telemetryapp.NewReadingPublisher(queue)
	if err != nil {
		logger.Fatal().Err(err).Msg("reading publisher")
	}

	metrics.RegisterGauges(
		func() float64 { return float64(history.Len()) },
		func() float64 { return float64(registry.Len()) },
		func() float64 { return float64(queue.Depth()) },
	)

	// HTTP surface.
	ingestHandler, err := telemetryhttp.NewIngestHandler(publisher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("ingest handler")
	}
	historyHandler, err := telemetryhttp.NewHistoryHandler(history)
	if err != nil {
		logger.Fatal().Err(err).Msg("history handler")
	}
	alarmHandler, err := alarmhttp.NewHandler(service, catalog, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("alarm handler")
	}
	auditHandler, err := audit.NewHandler(ring, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("audit handler")
	}

	mux := http.NewServeMux()
	mux.Handle("/api/telemetry", ingestHandler)
	mux.Handle("/api/history", historyHandler)
	alarmHandler.Register(mux)
	mux.Handle("/api/alarms/stream", alarmhttp.NewStreamHandler(broker))
	auditHandler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SimulatorInterval > 0 {
		sim, err := simulator.New(publisher, catalog, cfg.SimulatorInterval,
			simulator.WithInvalidRatio(cfg.SimulatorInvalidRatio),
			simulator.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal().Err(err).Msg("simulator")
		}
		go sim.Start(ctx)
		logger.Info().Dur("interval", cfg.SimulatorInterval).Msg("simulator started")
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("telemetry alarms listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	queue.Close()
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		logger.Warn().Int("pending", queue.Depth()).Msg("queue did not drain before shutdown deadline")
	}
	asyncNotifier.Close()
	select {
	case <-asyncNotifier.Done():
	case <-shutdownCtx.Done():
	}
	if webhookNotifier != nil {
		webhookNotifier.Close()
	}
	if csvLog != nil {
		if err := csvLog.Close(); err != nil {
			logger.Error().Err(err).Msg("close message log")
		}
	}
}

func loadConfig() config {
	return config{
		HTTPAddr:                getenvDefault("HTTP_ADDR", ":4000"),
		LogLevel:                getenvDefault("LOG_LEVEL", "info"),
		CatalogPath:             getenvDefault("CATALOG_PATH", ""),
		DatabaseURL:             getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		AuditLogPath:            getenvDefault("AUDIT_LOG_PATH", "messages_log.csv"),
		HistoryRetention:        getenvDuration("HISTORY_RETENTION", 60*time.Minute),
		HistoryMaxPoints:        getenvIntDefault("HISTORY_MAX_POINTS", 3600),
		QueueWorkers:            getenvIntDefault("QUEUE_WORKERS", 4),
		QueueBuffer:             getenvIntDefault("QUEUE_BUFFER", 256),
		QueueMaxAttempts:        getenvIntDefault("QUEUE_MAX_ATTEMPTS", 3),
		DefaultPriority:         getenvDefault("DEFAULT_PRIORITY", alarmapp.DefaultPriority),
		AlarmWebhookURL:         getenvDefault("ALARM_WEBHOOK_URL", ""),
		AlarmNotifyTemplate:     getenvDefault("ALARM_NOTIFY_TEMPLATE", ""),
		AlarmEscalationAfter:    getenvDuration("ALARM_ESCALATION_AFTER", 0),
		AlarmNotifyCooldown:     getenvDuration("ALARM_NOTIFY_COOLDOWN", 0),
		AlarmNotifyDedupeWindow: getenvDuration("ALARM_NOTIFY_DEDUP_WINDOW", 0),
		AlarmNotifyTimeout:      getenvDuration("ALARM_NOTIFY_TIMEOUT", 5*time.Second),
		NotifyBuffer:            getenvIntDefault("NOTIFY_BUFFER", 128),
		SimulatorInterval:       getenvDuration("SIMULATOR_INTERVAL", 0),
		SimulatorInvalidRatio:   getenvFloatDefault("SIMULATOR_INVALID_RATIO", 0),
	}
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Str("service", "telemetry-alarms").Logger()
}

func loadCatalog(path string) (*masterdata.Catalog, alarms.RuleSet, error) {
	if path == "" {
		return catalogfile.Default()
	}
	return catalogfile.Load(path)
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type schemaOwner interface {
	EnsureSchema(ctx context.Context) error
}

func ensureSchemas(owners ...schemaOwner) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, owner := range owners {
		if err := owner.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

func buildWebhookNotifier(cfg config, tickets alarmnotify.TicketReader, logger zerolog.Logger) (*alarmnotify.Notifier, error) {
	channel, err := alarmnotify.NewWebhookChannel(cfg.AlarmWebhookURL,
		alarmnotify.WithHTTPClient(&http.Client{Timeout: cfg.AlarmNotifyTimeout}))
	if err != nil {
		return nil, err
	}
	template, err := alarmnotify.NewTemplate(cfg.AlarmNotifyTemplate)
	if err != nil {
		return nil, err
	}
	return alarmnotify.NewNotifier(tickets, channel, template,
		alarmnotify.WithEscalation(cfg.AlarmEscalationAfter),
		alarmnotify.WithCooldown(cfg.AlarmNotifyCooldown),
		alarmnotify.WithDedupeWindow(cfg.AlarmNotifyDedupeWindow),
		alarmnotify.WithRequestTimeout(cfg.AlarmNotifyTimeout),
		alarmnotify.WithNotifierLogger(logger),
	)
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger zerolog.Logger) http.Handler {
	logger = logger.With().Str("component", "http").Logger()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", resp.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps server-sent events working through the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
