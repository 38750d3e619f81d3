package main

import (
	"log"
	"time"

	"go.uber.org/fx"

	"perp_bot/internal/modules/bootstrap"
	"perp_bot/internal/modules/config"
	"perp_bot/internal/modules/health"
	"perp_bot/internal/modules/journal"
	"perp_bot/internal/modules/okx_client"
	"perp_bot/internal/modules/okx_websocket"
	"perp_bot/internal/modules/postgres"
	telegram "perp_bot/internal/modules/telegram_bot"
	"perp_bot/internal/runner"
	"perp_bot/pkg/logger"
	"perp_bot/pkg/tracing"
)

const (
	// сверка и прогрев идут через retry
	startTimeout = time.Minute
	// покрывает kill switch, начатый до сигнала остановки
	stopTimeout = 5 * time.Minute
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger.SetServiceName(cfg.Service.Name)
	syncLog, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer syncLog()

	tracing.SetServiceName(cfg.Service.Name)
	_, closeTracer, err := tracing.InitTracer(tracing.Config{
		Enabled: cfg.Tracing.Enabled,
		Host:    cfg.Tracing.Host,
		Port:    cfg.Tracing.Port,
	})
	if err != nil {
		logger.Fatal("init tracer: %v", err)
	}
	defer closeTracer()

	logger.Info("starting %s: %s x%.0f paper=%t sampler=%s",
		cfg.Service.Name, cfg.Trading.Symbol, cfg.Trading.Leverage, cfg.OKX.Paper, cfg.Sampler.Source)

	app := fx.New(
		fx.StartTimeout(startTimeout),
		fx.StopTimeout(stopTimeout),
		fx.NopLogger,
		config.Module(cfg),
		postgres.Module(),
		health.Module(),
		okx_client.Module(),
		okx_websocket.Module(),
		journal.Module(),
		bootstrap.Module(),
		runner.Module(),
		telegram.Module(),
	)
	app.Run()
}
