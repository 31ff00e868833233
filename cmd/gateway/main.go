package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-exams/internal/api/http"
	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/config"
	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/notify"
	"github.com/mind-engage/mindengage-exams/internal/report"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// --- DB ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatal("db open failed", "driver", cfg.DBDriver, "error", err)
	}
	defer dbh.Close()
	store := exam.NewSQLStore(dbh)

	// --- Notifications (redis queue when configured, log otherwise) ---
	var dispatcher notify.Dispatcher = notify.LogDispatcher{Log: log}
	if cfg.RedisAddr != "" {
		rdb, err := notify.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatal("redis connect failed", "addr", cfg.RedisAddr, "error", err)
		}
		defer rdb.Close()
		dispatcher = notify.NewRedisDispatcher(rdb, cfg.NotifyQueue)
	}

	tz, err := api.NewTimezoneResolver(cfg.DefaultTimezone)
	if err != nil {
		log.Fatal("timezone", "error", err)
	}

	deps := api.Deps{
		Exams:   exam.NewService(store, log, exam.WithNotifier(dispatcher)),
		Reports: report.NewAggregator(store, log, cfg.ReportConcurrency),
		TZ:      tz,
		Log:     log,
	}
	opts := api.RouterOptions{
		Auth:        auth.NewAuthService(cfg.AuthHMACSecret),
		CORSOrigins: cfg.CORSOrigins(),
	}
	// Local login (enabled in offline mode by default; can be enabled online via env)
	if cfg.EnableLocalAuth {
		opts.LocalLogin = &auth.LocalLogin{AdminUser: cfg.AdminUser, AdminPassHash: cfg.AdminPassHash}
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", cfg.DBDriver, "notify_redis", cfg.RedisAddr != "")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http server", "error", err)
	}
}
