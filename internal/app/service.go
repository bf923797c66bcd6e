package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradePilot/config"
	"tradePilot/internal/adapters/binanceclient"
	"tradePilot/internal/adapters/gormstore"
	"tradePilot/internal/adapters/httpapi"
	"tradePilot/internal/adapters/metrics"
	"tradePilot/internal/adapters/notify"
	"tradePilot/internal/adapters/paper"
	"tradePilot/internal/adapters/sqlite"
	"tradePilot/internal/calendar"
	"tradePilot/internal/domain"
	"tradePilot/internal/orchestrator"
	"tradePilot/internal/pipeline"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
	"tradePilot/internal/strategy"
)

// shutdownTimeout bounds the drain of the in-flight batch on exit.
const shutdownTimeout = 30 * time.Second

// Venue is an exchange the daemon can trade on and read bars from.
type Venue interface {
	ports.ExecutionGateway
	ports.MarketDataSource
}

// AuditBackend is a store that can be written by the pipeline and read by
// reports.
type AuditBackend interface {
	ports.AuditStore
	ports.AuditReader
}

// Service owns every component of the trading daemon.
type Service struct {
	cfg    *config.Config
	logger ports.Logger

	calendar     *calendar.Calendar
	engine       *risk.Engine
	riskFile     *config.RiskFile // nil without RISK_FILE
	venue        Venue
	store        AuditBackend
	notifier     ports.Notifier
	pipeline     *pipeline.Pipeline
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Recorder
	api          *httpapi.Server // nil when HTTP_ADDR is empty
}

// NewService builds and wires all components. Nothing is started.
func NewService(cfg *config.Config, logger ports.Logger) (*Service, error) {
	if cfg == nil || logger == nil {
		return nil, fmt.Errorf("%w: missing required dependencies for service", ports.ErrConfiguration)
	}
	ctx := context.Background()
	s := &Service{cfg: cfg, logger: logger, metrics: metrics.NewRecorder()}

	calCfg := calendar.DefaultConfig()
	calCfg.Timezone = cfg.MarketTimezone
	calCfg.ExtraHolidays = cfg.MarketExtraHolidays
	cal, err := calendar.New(calCfg)
	if err != nil {
		return nil, err
	}
	s.calendar = cal

	if err := s.initRisk(ctx); err != nil {
		return nil, err
	}

	if s.venue, err = NewVenue(cfg, logger); err != nil {
		return nil, err
	}
	logger.Info(ctx, "Venue initialized", map[string]interface{}{"gateway": cfg.Gateway, "testnet": cfg.PaperTrading})

	if s.store, err = OpenAuditStore(cfg, logger); err != nil {
		return nil, err
	}
	s.notifier = NewNotifier(cfg, logger)

	strat, err := strategy.New(strategy.Config{
		ShortTermMAPeriod: cfg.StrategyShortMAPeriod,
		LongTermMAPeriod:  cfg.StrategyLongMAPeriod,
		EMAPeriod:         cfg.StrategyEMAPeriod,
		RSIPeriod:         cfg.StrategyRSIPeriod,
		RSIOverbought:     cfg.StrategyRSIOverbought,
		RSIOversold:       cfg.StrategyRSIOversold,
	}, logger)
	if err != nil {
		s.closeStore(ctx)
		return nil, err
	}

	s.pipeline, err = pipeline.New(pipeline.Config{
		Symbols:            cfg.Symbols,
		UpdateInterval:     cfg.UpdateInterval,
		BarLimit:           strat.RequiredDataPoints() * 2,
		DeriveCorrelations: s.riskFile == nil,
	}, pipeline.Deps{
		Risk:       s.engine,
		Gateway:    s.venue,
		Store:      s.store,
		Notifier:   s.notifier,
		Market:     s.venue,
		Strategies: []ports.StrategyCapability{strat},
		Logger:     logger,
	})
	if err != nil {
		s.closeStore(ctx)
		return nil, err
	}

	s.orchestrator, err = orchestrator.New(orchestrator.Config{
		HeartbeatInterval:  cfg.HeartbeatInterval,
		AutoStart:          cfg.AutoStart,
		AutoStop:           cfg.AutoStop,
		ConnectTimeout:     cfg.ConnectTimeout,
		ConnectRetries:     cfg.MaxReconnectAttempts,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
		RestartBackoff:     cfg.RestartBackoff,
	}, cal, s.pipeline, s.venue, s.engine, s.notifier, logger)
	if err != nil {
		s.closeStore(ctx)
		return nil, err
	}

	s.observe()

	if cfg.HTTPAddr != "" {
		s.api, err = httpapi.NewServer(httpapi.ServerConfig{
			Addr:           cfg.HTTPAddr,
			Summary:        s.orchestrator,
			Risk:           s.engine,
			Audit:          s.store,
			Control:        s.orchestrator,
			Metrics:        s.metrics.Handler(),
			Logger:         logger,
			OnBreakerReset: s.metrics.ObserveBreaker,
		})
		if err != nil {
			s.closeStore(ctx)
			return nil, err
		}
	}

	logger.Info(ctx, "Trading service initialized", map[string]interface{}{
		"symbols":  cfg.Symbols,
		"profile":  cfg.RiskProfile,
		"audit":    cfg.AuditDriver,
		"strategy": strat.Name(),
		"httpAddr": cfg.HTTPAddr,
	})
	return s, nil
}

// initRisk builds the engine from the profile, or from the risk file when one
// is configured.
func (s *Service) initRisk(ctx context.Context) error {
	settings, err := risk.ProfileSettings(s.cfg.RiskProfile)
	if err != nil {
		return err
	}
	corr := risk.NewCorrelationMatrix(nil)

	if s.cfg.RiskFile != "" {
		rf, err := config.LoadRiskFile(s.cfg.RiskFile, s.cfg.RiskProfile, s.logger)
		if err != nil {
			return err
		}
		snap := rf.Snapshot()
		settings, corr = snap.Settings, snap.Correlations
		s.riskFile = rf
		s.logger.Info(ctx, "Risk file loaded", map[string]interface{}{
			"file":             s.cfg.RiskFile,
			"profile":          snap.Profile,
			"correlationPairs": corr.Len(),
		})
	}

	s.engine, err = risk.NewEngine(settings, corr, s.logger)
	if err != nil {
		return err
	}
	if s.riskFile != nil {
		s.riskFile.Subscribe(func(snap config.RiskSnapshot) {
			ctx := context.Background()
			if err := s.engine.SwapSettings(ctx, snap.Settings); err != nil {
				s.logger.Error(ctx, err, "Failed to apply reloaded risk settings")
				return
			}
			s.engine.SwapCorrelations(snap.Correlations)
		})
	}
	return nil
}

// observe subscribes the metrics recorder to every component.
func (s *Service) observe() {
	s.pipeline.OnResult(s.metrics.ObserveResult)
	s.engine.Breaker().OnTrip(s.metrics.ObserveTrip)
	s.orchestrator.OnTransition(s.metrics.ObserveTransition)
	s.orchestrator.OnHeartbeat(func(state domain.OrchestratorState, at time.Time) {
		s.metrics.ObserveHeartbeat(state, at)
		s.metrics.ObservePortfolio(s.engine.Portfolio())
		s.metrics.ObserveBreaker(s.engine.Breaker().State())
	})
	s.metrics.ObserveBreaker(s.engine.Breaker().State())
}

// NewVenue returns the configured execution venue.
func NewVenue(cfg *config.Config, logger ports.Logger) (Venue, error) {
	switch cfg.Gateway {
	case config.GatewayPaper:
		return paper.NewBroker(paper.Config{
			StartingCash: cfg.PaperStartingCash,
			Seed:         time.Now().UnixNano(),
			Logger:       logger,
		})
	case config.GatewayBinance:
		return binanceclient.New(binanceclient.Config{
			APIKey:         cfg.APIKey,
			SecretKey:      cfg.SecretKey,
			UseTestnet:     cfg.PaperTrading,
			Logger:         logger,
			ReconnectDelay: cfg.ReconnectDelay,
		})
	default:
		return nil, fmt.Errorf("%w: unknown gateway %q", ports.ErrConfiguration, cfg.Gateway)
	}
}

// OpenAuditStore opens the configured audit backend.
func OpenAuditStore(cfg *config.Config, logger ports.Logger) (AuditBackend, error) {
	switch cfg.AuditDriver {
	case config.AuditSQLite:
		return sqlite.NewAuditStore(sqlite.Config{DBPath: cfg.DBPath, Logger: logger})
	case config.AuditGormSQLite:
		return gormstore.New(gormstore.Config{Driver: "sqlite", DSN: cfg.DBPath, Logger: logger})
	case config.AuditGormPostgres:
		return gormstore.New(gormstore.Config{Driver: "postgres", DSN: cfg.DatabaseURL, Logger: logger})
	default:
		return nil, fmt.Errorf("%w: unknown audit driver %q", ports.ErrConfiguration, cfg.AuditDriver)
	}
}

// NewNotifier fans alerts out to the log and every configured chat sink.
func NewNotifier(cfg *config.Config, logger ports.Logger) ports.Notifier {
	sinks := []ports.Notifier{notify.NewLogNotifier(logger)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		sinks = append(sinks, notify.NewDiscordNotifier(cfg.DiscordWebhookURL))
	}
	return notify.NewMulti(sinks...)
}

// Orchestrator exposes the state machine, mainly for tests and tooling.
func (s *Service) Orchestrator() *orchestrator.Orchestrator { return s.orchestrator }

// Run starts the daemon and blocks until ctx is cancelled, SIGINT/SIGTERM
// arrives or the HTTP API fails. The pipeline is drained before returning.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if s.riskFile != nil {
		s.riskFile.Watch()
	}

	apiErr := make(chan error, 1)
	if s.api != nil {
		go func() {
			if err := s.api.Start(ctx); err != nil {
				apiErr <- err
			}
		}()
	}

	// A failed connect leaves the orchestrator in ERROR with restarts
	// scheduled, so it is not fatal here.
	if err := s.orchestrator.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial start failed, supervisor will retry")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-apiErr:
		s.logger.Error(ctx, runErr, "HTTP API stopped unexpectedly")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	s.orchestrator.Stop(stopCtx)
	s.logger.Info(stopCtx, "Trading service stopped", map[string]interface{}{"stats": s.pipeline.Stats()})
	return runErr
}

// Close releases the audit store.
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

func (s *Service) closeStore(ctx context.Context) {
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, err, "Error closing audit store")
	}
}
