// Package app 负责把配置装配成可运行的交易进程：网关、情绪、评分器、
// 持久化、通知、状态接口与控制循环。
package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"hypertrader/internal/config"
	"hypertrader/internal/engine"
	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/gateway/hyperliquid"
	"hypertrader/internal/logger"
	"hypertrader/internal/market"
	"hypertrader/internal/ml"
	"hypertrader/internal/notifier"
	"hypertrader/internal/sentiment"
	"hypertrader/internal/store"
	statushttp "hypertrader/internal/transport/http"
)

// App 持有装配完成的进程组件。
type App struct {
	cfg    *config.Config
	engine *engine.Engine
	mids   *hyperliquid.MidsUpdater
	server *statushttp.Server
}

// NewApp 按配置装配全部组件。dry_run 使用模拟账户网关，实盘走外部
// 执行服务。
func NewApp(cfg *config.Config) (*App, error) {
	info := hyperliquid.NewInfoClient(cfg.Exchange.RESTBaseURL, cfg.Exchange.AccountAddress,
		time.Duration(cfg.Exchange.TimeoutSeconds)*time.Second)

	var gw exchange.Gateway
	if cfg.Agent.DryRun {
		gw = hyperliquid.NewPaperGateway(info, cfg.Exchange.PaperBalanceUSD)
		logger.Infof("✓ dry-run 模式：真实行情 + 模拟账户（起始余额 %.2f USD）", cfg.Exchange.PaperBalanceUSD)
	} else {
		gw = hyperliquid.NewLiveGateway(info, cfg.Exchange.ExecutorURL, cfg.Exchange.ExecutorToken,
			time.Duration(cfg.Exchange.TimeoutSeconds)*time.Second)
		logger.Infof("✓ 实盘模式：执行服务 %s", cfg.Exchange.ExecutorURL)
	}

	var sent *sentiment.Service
	if cfg.Sentiment.Enabled {
		sent = sentiment.NewService(cfg.Sentiment.APIURL, cfg.Sentiment.APIKey,
			time.Duration(cfg.Sentiment.TTLSeconds)*time.Second)
		logger.Infof("✓ 情绪数据源已启用: %s", cfg.Sentiment.APIURL)
	}

	var scorer *ml.Scorer
	if cfg.ML.Enabled {
		scorer = ml.NewScorer(cfg.ML.PythonBin, cfg.ML.ScriptPath,
			time.Duration(cfg.ML.TimeoutSeconds)*time.Second)
		logger.Infof("✓ 置信度评分器已启用: %s %s", cfg.ML.PythonBin, cfg.ML.ScriptPath)
	}

	var db *store.Store
	if cfg.Store.Path != "" {
		var err error
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		logger.Infof("✓ 数据库就绪: %s", cfg.Store.Path)
	}

	var tg *notifier.Telegram
	if cfg.Notify.Telegram.Enabled {
		tg = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
		logger.Infof("✓ Telegram 通知已启用")
	}

	prices := market.NewPriceCache()
	eng := engine.New(engine.Deps{
		Config:    cfg,
		Gateway:   gw,
		Prices:    prices,
		Sentiment: sent,
		Scorer:    scorer,
		Store:     db,
		Notifier:  tg,
	})

	app := &App{cfg: cfg, engine: eng}
	if cfg.Exchange.WSURL != "" {
		app.mids = hyperliquid.NewMidsUpdater(cfg.Exchange.WSURL, prices)
	}
	if cfg.App.HTTPAddr != "" {
		app.server = statushttp.NewServer(cfg.App.HTTPAddr, eng)
	}
	return app, nil
}

// Run 启动行情推送与状态接口，然后阻塞在控制循环上。控制循环退出
// 后其余组件随 ctx 一起收尾。
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.mids != nil {
		a.mids.Start(ctx)
	}
	g, gctx := errgroup.WithContext(ctx)
	if a.server != nil {
		g.Go(func() error { return a.server.Start(gctx) })
		logger.Infof("✓ 状态接口监听 %s", a.server.Addr())
	}
	g.Go(func() error {
		defer cancel()
		return a.engine.Run(gctx)
	})
	return g.Wait()
}
