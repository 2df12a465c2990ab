package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"eyecheck-web/internal/config"
	"eyecheck-web/internal/form"
	"eyecheck-web/internal/logging"
	redisClient "eyecheck-web/internal/platform/redis"
	"eyecheck-web/internal/predict"
	"eyecheck-web/internal/session"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Predictor *predict.Client
	Redis     *redis.Client
	Sessions  *session.Manager

	// SessionStore is nil unless the redis session backend is configured.
	SessionStore *session.RedisStore

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig wires the application from an already loaded config.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.Configure(cfg.Log.Level)

	predictor := predict.NewClient(cfg.Predict.BaseURL,
		predict.WithPredictPath(cfg.Predict.Path),
		predict.WithTimeout(cfg.PredictTimeout()),
	)

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Predictor: predictor,
		StartedAt: time.Now(),
	}

	var store session.SnapshotStore
	if cfg.Session.Backend == config.SessionBackendRedis {
		redisCli, err := redisClient.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		app.Redis = redisCli
		app.SessionStore = session.NewRedisStore(redisCli, cfg.SessionTTL())
		store = app.SessionStore
	}

	app.Sessions = session.NewManager(predictor, session.Config{
		MaxSessions: cfg.Session.MaxSessions,
		TTL:         cfg.SessionTTL(),
		Store:       store,
		Form: form.Options{
			ClearResultOnFailure: cfg.Form.ClearResultOnFailure,
		},
		Logger: logger,
	})

	logger.Info("app wired",
		"predict_url", predictor.PredictURL(),
		"session_backend", cfg.Session.Backend,
		"clear_result_on_failure", cfg.Form.ClearResultOnFailure,
	)
	return app, nil
}

func (a *App) Close() error {
	var closeErr error
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
