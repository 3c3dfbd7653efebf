package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"estatechat/internal/api"
	"estatechat/internal/logging"
	"estatechat/internal/metrics"
	"estatechat/internal/middleware"
	"estatechat/internal/realtime"
	"estatechat/internal/repository"
	"estatechat/internal/service"
	"estatechat/internal/storage"
	"estatechat/internal/utils"
	"estatechat/pkg/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	// 載入應用程式配置
	// 從配置文件與 ESTATECHAT_ 環境變數讀取設置
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 初始化資料庫連接
	db, err := storage.NewPostgresDB(cfg.DB)
	if err != nil {
		return err
	}
	// 確保在程序結束時關閉數據庫連接
	defer db.Close()

	// 自動遷移資料庫結構
	if err := db.AutoMigrate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 初始化 repositories
	repos := repository.NewRepositories(db)
	tokens := utils.NewTokenManager(cfg.JWT.Secret, cfg.JWT.TTL, cfg.JWT.Issuer)

	opts := realtime.Options{
		SendBuffer:    cfg.Realtime.SendBuffer,
		PublishBuffer: cfg.Realtime.PublishBuffer,
		InboundBuffer: cfg.Realtime.InboundBuffer,
		InboundRate:   rate.Limit(cfg.Realtime.InboundRate),
		InboundBurst:  cfg.Realtime.InboundBurst,
		ReadLimit:     cfg.Realtime.ReadLimit,
		PongWait:      cfg.Realtime.PongWait,
		WriteWait:     cfg.Realtime.WriteWait,
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		opts.Relay = realtime.NewRedisRelay(rdb, cfg.Redis.Channel, log)
		log.Info("redis relay enabled", slog.String("addr", cfg.Redis.Addr), slog.String("channel", cfg.Redis.Channel))
	}

	// 初始化 services，hub 以 ConversationService 查成員資格
	conversations := service.NewConversationService(repos.Conversation, log)
	hub := realtime.NewHub(tokens, conversations, collector, log, opts)
	services := service.NewServices(repos, conversations, tokens, hub.Bridge(), log)
	if err := hub.Start(ctx); err != nil {
		return err
	}

	// 設置 Gin 路由
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	api.SetupRoutes(r, services, hub, api.RouteOptions{
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		Gatherer:       reg,
		Log:            log,
	})

	srv := &http.Server{Addr: cfg.Server.Address, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", slog.String("addr", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			hub.Stop()
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// WebSocket 連線已被 hijack，Shutdown 不會等它們，先停 hub 關閉所有連線
	hub.Stop()
	return srv.Shutdown(shutdownCtx)
}
