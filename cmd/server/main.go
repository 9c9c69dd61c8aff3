package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/taoyao-code/vmc-middleware/internal/api"
	cfgpkg "github.com/taoyao-code/vmc-middleware/internal/config"
	"github.com/taoyao-code/vmc-middleware/internal/httpserver"
	"github.com/taoyao-code/vmc-middleware/internal/logging"
	"github.com/taoyao-code/vmc-middleware/internal/metrics"
	"github.com/taoyao-code/vmc-middleware/internal/poller"
	"github.com/taoyao-code/vmc-middleware/internal/seriallink"
	"github.com/taoyao-code/vmc-middleware/internal/storage/gormrepo"
)

func main() {
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appMetrics := metrics.NewAppMetrics(reg)
	metricsHandler := metrics.Handler(reg)

	// 4) 数据库与存储
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		log.Fatal("database open error", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}
	if err := gormrepo.AutoMigrate(db); err != nil {
		log.Fatal("auto migrate error", zap.Error(err))
	}
	store := gormrepo.New(db)

	// 5) 轮询引擎（串口链路的唯一属主，全进程仅此一个实例）
	engine := poller.New(store, log.Named("poller"), appMetrics)
	link := seriallink.New(seriallink.Config{
		Address:     cfg.Serial.Address,
		BaudRate:    cfg.Serial.BaudRate,
		DataBits:    cfg.Serial.DataBits,
		StopBits:    cfg.Serial.StopBits,
		Parity:      cfg.Serial.Parity,
		ReadTimeout: cfg.Serial.ReadTimeout,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go engine.Run(ctx, link, cfg.Serial.RetryInterval)

	// 6) HTTP 请求面
	httpSrv := httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, func() bool {
		sqlDB, err := db.DB()
		return err == nil && sqlDB.Ping() == nil
	})
	api.RegisterRoutes(httpSrv.Engine(), store, cfg.API, log.Named("api"))

	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("vmc middleware running",
		zap.String("http", cfg.HTTP.Addr),
		zap.String("serial", cfg.Serial.Address))

	// 信号处理，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}
