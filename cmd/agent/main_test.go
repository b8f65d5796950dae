package main

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"runsync-agent/internal/config"
	"runsync-agent/internal/credential"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errTest = context.Canceled

func TestRunHandlesSignal(t *testing.T) {
	cfg := config.Config{ServerPort: ":0"}
	signals := make(chan os.Signal, 1)

	listenCalled := false
	listen := func(_ *fiber.App, _ string) error {
		listenCalled = true
		return nil
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), cfg, nil, signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !listenCalled {
		t.Fatalf("expected listen to be called")
	}
}

func TestRunContextCancel(t *testing.T) {
	cfg := config.Config{ServerPort: ":0"}
	signals := make(chan os.Signal, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Run(ctx, cfg, nil, signals, func(_ *fiber.App, _ string) error { return nil }); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunListenError(t *testing.T) {
	cfg := config.Config{ServerPort: ":0"}
	signals := make(chan os.Signal, 1)

	err := Run(context.Background(), cfg, nil, signals, func(_ *fiber.App, _ string) error {
		return errTest
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunDefaultListen(t *testing.T) {
	cfg := config.Config{ServerPort: ":0"}
	signals := make(chan os.Signal, 1)

	oldListen := defaultListen
	defaultListen = func(_ *fiber.App, _ string) error { return nil }
	defer func() { defaultListen = oldListen }()

	go func() {
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), cfg, nil, signals, nil); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunClosesRedis(t *testing.T) {
	cfg := config.Config{ServerPort: ":0", AccessToken: "a", RefreshToken: "r"}
	signals := make(chan os.Signal, 1)

	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})

	listen := func(_ *fiber.App, _ string) error {
		signals <- syscall.SIGINT
		return nil
	}

	if err := Run(context.Background(), cfg, client, signals, listen); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

func TestRunShutdownError(t *testing.T) {
	cfg := config.Config{ServerPort: ":0"}
	signals := make(chan os.Signal, 1)

	oldShutdown := shutdownFn
	shutdownFn = func(_ *fiber.App, _ context.Context) error { return errTest }
	defer func() { shutdownFn = oldShutdown }()

	go func() {
		signals <- syscall.SIGINT
	}()

	if err := Run(context.Background(), cfg, nil, signals, func(_ *fiber.App, _ string) error { return nil }); err == nil {
		t.Fatalf("expected shutdown error")
	}
}

func TestRealMainHandlesErrors(t *testing.T) {
	calledNotify := false
	calledRun := false
	deps := mainDeps{
		loadConfig:   func() config.Config { return config.Config{ServerPort: ":0"} },
		connectRedis: func(config.Config) *redis.Client { return nil },
		notify: func(ch chan<- os.Signal, _ ...os.Signal) {
			calledNotify = true
			close(ch)
		},
		run: func(context.Context, config.Config, *redis.Client, <-chan os.Signal, ListenFunc) error {
			calledRun = true
			return errTest
		},
	}

	realMain(deps)
	if !calledNotify {
		t.Fatalf("expected notify to be called")
	}
	if !calledRun {
		t.Fatalf("expected run to be called")
	}
}

func TestDefaultDeps(t *testing.T) {
	deps := defaultDeps()
	if deps.loadConfig == nil || deps.connectRedis == nil || deps.notify == nil || deps.run == nil {
		t.Fatalf("expected default deps to be set")
	}
}

func TestMainUsesOverrides(t *testing.T) {
	oldProvider := mainDepsProvider
	oldRunner := mainRunner
	defer func() {
		mainDepsProvider = oldProvider
		mainRunner = oldRunner
	}()

	called := false
	mainDepsProvider = func() mainDeps { return mainDeps{} }
	mainRunner = func(mainDeps) { called = true }

	main()
	if !called {
		t.Fatalf("expected main runner to be called")
	}
}

func TestBuildCredentialsPrefersPersistedPair(t *testing.T) {
	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	ctx := context.Background()

	persisted := credential.NewRedisStore(client)
	if err := persisted.Set(ctx, credential.Pair{AccessToken: "refreshed", RefreshToken: "refreshed-r"}); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	store := buildCredentials(ctx, config.Config{AccessToken: "stale", RefreshToken: "stale-r"}, client)
	pair, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pair.AccessToken != "refreshed" {
		t.Fatalf("expected persisted pair to win, got %+v", pair)
	}
}

func TestBuildCredentialsSeedsEmptyRedis(t *testing.T) {
	redisServer := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: redisServer.Addr()})
	ctx := context.Background()

	store := buildCredentials(ctx, config.Config{AccessToken: "a", RefreshToken: "r"}, client)
	pair, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pair.AccessToken != "a" || pair.RefreshToken != "r" {
		t.Fatalf("expected seeded pair, got %+v", pair)
	}
}

func TestBuildCredentialsWithoutRedis(t *testing.T) {
	store := buildCredentials(context.Background(), config.Config{AccessToken: "a", RefreshToken: "r"}, nil)
	pair, _ := store.Get(context.Background())
	if pair.AccessToken != "a" {
		t.Fatalf("expected memory store seeded from config, got %+v", pair)
	}
}
