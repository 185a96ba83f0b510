package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"kline-structure/internal/analyzer"
	"kline-structure/internal/api"
	"kline-structure/internal/model"
	"kline-structure/internal/service"
	"kline-structure/internal/store"
	"kline-structure/internal/structure"

	"go.uber.org/zap"
)

func main() {
	configPath := "config"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Configuration directory '%s' not found. Please create it.\n", configPath)
		os.Exit(1)
	}
	cfg, err := service.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	service.InitLogger(cfg.Log.Level)
	defer service.Logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 收集所有要订阅的 Symbol
	var symbols []string
	for _, instanceCfg := range cfg.Instances {
		symbols = append(symbols, instanceCfg.Symbol)
	}

	// 2. 初始化单个 Connector (连接器只负责连接和按 Symbol 分发数据)
	connector := api.NewConnector(cfg.Exchange.WSURL, symbols, service.Logger)

	// 3. 为每个实例启动一个隔离的分析 Goroutine
	var wg sync.WaitGroup
	for instanceName, instanceCfg := range cfg.Instances {
		service.Logger.Info(fmt.Sprintf("Exchange: %s, Instance: %s, Symbol: %s", cfg.Exchange.Name, instanceName, instanceCfg.Symbol))

		// 使用专用的 logger
		instanceLogger := service.Logger.With(zap.String("Instance", instanceName), zap.String("Symbol", instanceCfg.Symbol))

		barStore, err := openStore(cfg, instanceCfg, instanceLogger)
		if err != nil {
			service.Logger.Fatal("Failed to open bar store", zap.String("Instance", instanceName), zap.Error(err))
		}
		defer barStore.Close()

		dataEngine, err := model.NewDataEngine(connector.Subscribe(instanceCfg.Symbol),
			instanceCfg.Symbol, instanceCfg.Interval, instanceLogger)
		if err != nil {
			service.Logger.Fatal("Failed to create data engine", zap.String("Instance", instanceName), zap.Error(err))
		}

		a := analyzer.New(instanceName, instanceCfg.Symbol, barStore, structure.Config{
			PenMinDistance: cfg.Pipeline.PenMinDistance,
		}, service.Logger)

		if instanceCfg.Replay {
			if err := a.Replay(ctx, 0); err != nil {
				instanceLogger.Error("Replay of stored bars failed", zap.Error(err))
			}
		}

		events := a.Pipeline().Subscribe(cfg.Pipeline.EventBuffer)

		wg.Add(3)
		go func() {
			defer wg.Done()
			dataEngine.Start(ctx)
		}()
		go func() {
			defer wg.Done()
			a.Run(ctx, dataEngine.GetKlineChannel())
			a.Pipeline().Close()
		}()
		go func() {
			defer wg.Done()
			watchSegments(events, instanceLogger)
		}()
	}

	// 4. 启动 Connector，ctx 结束时退出
	connector.Start(ctx)
	wg.Wait()
	service.Logger.Info("Shutdown complete")
}

func openStore(cfg *service.Config, inst service.InstanceConfig, logger *zap.Logger) (store.BarStore, error) {
	if cfg.Store.Driver != service.StoreSQLite {
		return store.NewMemoryStore(), nil
	}
	series, err := inst.SeriesKey()
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(cfg.Store.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return store.OpenSQLiteStore(cfg.Store.SQLitePath, series, logger)
}

// watchSegments 订阅线段确认事件
func watchSegments(events <-chan structure.Event, logger *zap.Logger) {
	for ev := range events {
		if ev.Kind == structure.EventSegment && ev.SegmentChange == structure.SegmentClosed {
			logger.Info("!!! SEGMENT CONFIRMED !!!",
				zap.Stringer("Segment", ev.ClosedSegment),
				zap.Int("BarIndex", ev.BarIndex))
		}
	}
}
