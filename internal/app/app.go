package app

import (
	"context"
	"fmt"

	"perpbot/internal/agent"
	"perpbot/internal/config"
	"perpbot/internal/logger"
	"perpbot/internal/store/gormstore"
	"perpbot/internal/transport/http/admin"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动交易机器人、后台 API 与配置监听。
type App struct {
	cfg     *config.Config
	runtime *config.Runtime
	bot     *agent.Orchestrator
	admin   *admin.Server
	watcher *config.Watcher
	journal *gormstore.Journal
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run blocks until ctx is cancelled or a server fails, then stops the bot.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil || a.bot == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer func() {
		if err := a.journal.Close(); err != nil {
			logger.Warnf("journal close: %v", err)
		}
	}()

	group, ctx := errgroup.WithContext(ctx)
	if a.admin != nil {
		group.Go(func() error {
			if err := a.admin.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}
	if a.watcher != nil {
		group.Go(func() error {
			if err := a.watcher.Run(ctx); err != nil {
				logger.Warnf("config watcher stopped: %v", err)
			}
			return nil
		})
	}

	if a.cfg.App.AutoStart {
		a.bot.Start(ctx)
	} else {
		logger.Infof("auto_start disabled; POST /api/trading/start to begin")
	}
	group.Go(func() error {
		<-ctx.Done()
		a.bot.Stop()
		return nil
	})
	return group.Wait()
}

// Orchestrator exposes the trading supervisor (for tests and tooling).
func (a *App) Orchestrator() *agent.Orchestrator {
	if a == nil {
		return nil
	}
	return a.bot
}

func (a *App) Runtime() *config.Runtime {
	if a == nil {
		return nil
	}
	return a.runtime
}
