package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"runsync-agent/internal/activity"
	"runsync-agent/internal/config"
	"runsync-agent/internal/credential"
	"runsync-agent/internal/location"
	"runsync-agent/internal/recovery"
	"runsync-agent/internal/server"
	"runsync-agent/internal/session"
	"runsync-agent/internal/stream"
	"runsync-agent/internal/transport"
	"runsync-agent/internal/uploader"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig   func() config.Config
	connectRedis func(config.Config) *redis.Client
	notify       func(chan<- os.Signal, ...os.Signal)
	run          func(context.Context, config.Config, *redis.Client, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig: config.Load,
		connectRedis: func(cfg config.Config) *redis.Client {
			return credential.Connect(cfg.RedisAddr, cfg.RedisPassword)
		},
		notify: signal.Notify,
		run:    Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, rdb, signals, nil); err != nil {
		log.Printf("agent exited with error: %v", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run wires the engine together, starts the local control server, and
// waits for termination. An active session is left open server-side on
// shutdown; the reconciler picks it up on next launch.
func Run(ctx context.Context, cfg config.Config, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc) error {
	creds := buildCredentials(ctx, cfg, rdb)
	refresher := transport.NewRefresher(cfg.RefreshURL, creds, nil)
	api := activity.NewClient(transport.NewClient(cfg.ActivityAPIURL, creds, refresher, nil))

	hub := stream.NewHub(rdb)
	feed := location.NewFeed()

	var tracker *session.Tracker
	queue := uploader.New(api, cfg.RequestTimeout(), 256, func(err error) {
		if tracker != nil {
			tracker.Fatal(err)
		}
	})
	tracker = session.New(session.Options{
		API:             api,
		Queue:           queue,
		Location:        feed,
		Hub:             hub,
		CaloriesPerKm:   cfg.CaloriesPerKm,
		StatsInterval:   cfg.StatsInterval(),
		CaptureInterval: cfg.CaptureInterval(),
		RequestTimeout:  cfg.RequestTimeout(),
	})

	reconciler := recovery.New(api, cfg.UserID)
	if cfg.UserID != "" {
		if err := reconciler.Run(ctx, tracker); err != nil {
			// Not fatal: the start handler retries before any new session.
			log.Printf("startup reconciliation failed: %v", err)
		}
	}

	srv := server.NewServer(cfg, tracker, reconciler, hub, feed)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	queue.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}

// buildCredentials prefers a pair already persisted in redis over the
// configured seed tokens, so a restarted agent keeps refreshed tokens
// instead of reverting to stale ones.
func buildCredentials(ctx context.Context, cfg config.Config, rdb *redis.Client) credential.Store {
	seed := credential.Pair{AccessToken: cfg.AccessToken, RefreshToken: cfg.RefreshToken}
	if rdb == nil {
		return credential.NewMemoryStore(seed)
	}

	store := credential.NewRedisStore(rdb)
	pair, err := store.Get(ctx)
	if err != nil {
		log.Printf("credential load failed: %v", err)
		return credential.NewMemoryStore(seed)
	}
	if pair.Empty() && !seed.Empty() {
		if err := store.Set(ctx, seed); err != nil {
			log.Printf("credential seed failed: %v", err)
		}
	}
	return store
}
