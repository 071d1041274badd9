package app

import (
	"context"
	"fmt"
	"time"

	"perpbot/internal/agent"
	"perpbot/internal/analysis/indicator"
	"perpbot/internal/config"
	"perpbot/internal/gateway/binance"
	"perpbot/internal/gateway/exchange"
	"perpbot/internal/gateway/notifier"
	"perpbot/internal/logger"
	"perpbot/internal/pkg/circuit"
	"perpbot/internal/risk"
	"perpbot/internal/scanner"
	"perpbot/internal/store/gormstore"
	"perpbot/internal/strategy"
	"perpbot/internal/trader"
	"perpbot/internal/transport/http/admin"
)

const (
	telegramBreakerThreshold = 3
	telegramBreakerCooldown  = 2 * time.Minute
)

type AppBuilder struct {
	cfg *config.Config

	exchangeFn func(config.ExchangeConfig) (exchange.Client, error)
	journalFn  func(path string) (*gormstore.Journal, error)
	senderFn   func(config.TelegramConfig) notifier.Sender
}

type AppBuilderOption func(*AppBuilder)

// WithExchange replaces the Binance client, e.g. with exchangetest.Fake.
func WithExchange(fn func(config.ExchangeConfig) (exchange.Client, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.exchangeFn = fn }
}

func WithSender(fn func(config.TelegramConfig) notifier.Sender) AppBuilderOption {
	return func(b *AppBuilder) { b.senderFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:        cfg,
		exchangeFn: buildExchange,
		journalFn:  gormstore.Open,
		senderFn:   buildTelegram,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildExchange(cfg config.ExchangeConfig) (exchange.Client, error) {
	return binance.New(binance.Config{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		UseTestnet:     cfg.UseTestnet,
		RESTBaseURL:    cfg.RESTBaseURL,
		TestnetBaseURL: cfg.TestnetBaseURL,
		HTTPTimeout:    time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		ProxyEnabled:   cfg.ProxyEnabled,
		ProxyURL:       cfg.ProxyURL,
		RateLimit:      cfg.RateLimitPerSecond,
		Burst:          cfg.RateLimitBurst,
	})
}

func buildTelegram(cfg config.TelegramConfig) notifier.Sender {
	if !cfg.Enabled || cfg.BotToken == "" {
		return nil
	}
	return notifier.NewTelegram(cfg.BotToken, cfg.APIBase, time.Duration(cfg.TimeoutSeconds)*time.Second)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	ex, err := b.exchangeFn(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("exchange client: %w", err)
	}
	rt := config.NewRuntime(cfg)
	rt.OnChange(func(param string, value any) {
		if param == config.ParamUseTestnet {
			logger.Warnf("config: use_testnet=%v takes effect after restart", value)
		}
	})

	var dispatcher *notifier.Dispatcher
	if sender := b.senderFn(cfg.Notify.Telegram); sender != nil {
		dispatcher = notifier.NewDispatcher(sender, cfg.Notify.Telegram.AdminIDs, notifier.DispatcherOptions{
			QueueSize: cfg.Notify.QueueSize,
			Breaker:   circuit.New("telegram", telegramBreakerThreshold, telegramBreakerCooldown),
		})
	} else {
		logger.Infof("telegram disabled, notifications go to the log")
		dispatcher = notifier.NewDispatcher(nil, nil, notifier.DispatcherOptions{QueueSize: cfg.Notify.QueueSize})
	}

	var (
		journal      *gormstore.Journal
		tradeJournal trader.Journal
		haltJournal  risk.HaltJournal
		history      admin.History
	)
	if cfg.Journal.Path != "" {
		journal, err = b.journalFn(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("trade journal: %w", err)
		}
		tradeJournal, haltJournal, history = journal, journal, journal
		logger.Infof("✓ trade journal at %s", cfg.Journal.Path)
	}

	stats := trader.NewStatsBook(time.Now())
	trades := trader.NewManager(ex, stats, rt, trader.Options{
		SettleDelay: time.Duration(cfg.Trading.OrderSettleMillis) * time.Millisecond,
		Journal:     tradeJournal,
		Notifier:    dispatcher,
	})
	engine := indicator.NewEngine(ex)
	signals := strategy.NewGenerator(engine, rt)
	monitor := risk.NewMonitor(stats, ex, rt, risk.MonitorOptions{Notifier: dispatcher, Journal: haltJournal})
	scan := scanner.New(ex, signals, rt, rt.Pairs(), dispatcher)

	bot := agent.New(agent.Params{
		Runtime:    rt,
		Exchange:   ex,
		Signals:    signals,
		Sizer:      risk.NewSizer(ex, rt),
		Trades:     trades,
		Risk:       monitor,
		Scanner:    scan,
		Dispatcher: dispatcher,
	})

	var server *admin.Server
	if cfg.HTTP.Enabled {
		server, err = admin.NewServer(admin.ServerConfig{
			Addr:          cfg.HTTP.Addr,
			JWTSecret:     cfg.HTTP.JWTSecret,
			AllowInsecure: cfg.HTTP.AllowInsecure,
			Deps: admin.Deps{
				Runtime:    rt,
				Controller: bot,
				Trades:     trades,
				Scanner:    scan,
				Indicators: engine,
				Signals:    signals,
				Market:     ex,
				History:    history,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	var watcher *config.Watcher
	if cfg.App.Watch && cfg.Path != "" {
		watcher, err = config.NewWatcher(cfg, rt)
		if err != nil {
			return nil, err
		}
	}

	return &App{
		cfg:     cfg,
		runtime: rt,
		bot:     bot,
		admin:   server,
		watcher: watcher,
		journal: journal,
		Summary: newStartupSummary(cfg, rt.Snapshot()),
	}, nil
}
