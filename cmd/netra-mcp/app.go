package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/netra-systems/zen-sub153/broker"
	"github.com/netra-systems/zen-sub153/broker/memory"
	brokerredis "github.com/netra-systems/zen-sub153/broker/redis"
	"github.com/netra-systems/zen-sub153/config"
	"github.com/netra-systems/zen-sub153/history"
	"github.com/netra-systems/zen-sub153/internal/engine"
	"github.com/netra-systems/zen-sub153/internal/logctx"
	"github.com/netra-systems/zen-sub153/mcpservice"
	"github.com/netra-systems/zen-sub153/platform"
	"github.com/netra-systems/zen-sub153/sessions"
	"github.com/netra-systems/zen-sub153/stdio"
	"github.com/netra-systems/zen-sub153/streaminghttp"
	"github.com/netra-systems/zen-sub153/websocket"
)

const shutdownTimeout = 10 * time.Second

// newLogger builds the process logger on w from the configured level and
// format.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return logctx.New(h), nil
}

// server is the transport-independent part of the process.
type server struct {
	cfg   *config.Config
	log   *slog.Logger
	eng   *engine.Engine
	store *sessions.Store
	redis redis.UniversalClient

	onExpire func(id string)
}

// build wires the session store, registries, sampling backend and history
// sinks into an engine.
func build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*server, error) {
	s := &server{cfg: cfg, log: log}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		s.redis = rdb
	}

	s.store = sessions.NewStore(
		sessions.WithTTL(cfg.SessionTTL),
		sessions.WithRateLimit(cfg.RateLimitPerMinute),
		sessions.WithLogger(log),
		sessions.WithOnExpire(func(id string) {
			if s.onExpire != nil {
				s.onExpire(id)
			}
		}),
	)

	var sampler platform.Sampler
	if cfg.EnableSampling && cfg.OpenAIKey != "" {
		oa, err := platform.NewOpenAISampler(platform.OpenAIConfig{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		sampler = oa
	}
	svc := platform.NewMemory().Services(sampler)

	execLog, accessLog, err := s.historySinks()
	if err != nil {
		return nil, err
	}
	regs := mcpservice.NewBuiltinRegistries(svc,
		mcpservice.WithLogger(log),
		mcpservice.WithPermissions(s.store.Permissions),
		mcpservice.WithToolTimeout(cfg.ToolTimeout),
		mcpservice.WithExecutionLog(execLog),
		mcpservice.WithAccessLog(accessLog),
	)
	if !cfg.EnableTools {
		regs.Tools = nil
	}
	if !cfg.EnableResources {
		regs.Resources = nil
	}
	if !cfg.EnablePrompts {
		regs.Prompts = nil
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithServerInfo(cfg.ServerName, cfg.Version),
	}
	if cfg.EnableSampling {
		opts = append(opts, engine.WithSampler(svc.Sampler))
	}
	s.eng = engine.NewEngine(regs, s.store, opts...)
	return s, nil
}

// historySinks returns the execution and access recorders: in-memory rings,
// teed into capped Redis lists when Redis is configured.
func (s *server) historySinks() (history.Recorder[history.ExecutionRecord], history.Recorder[history.AccessRecord], error) {
	execRing := history.NewRing[history.ExecutionRecord](s.cfg.HistoryCapacity)
	accessRing := history.NewRing[history.AccessRecord](s.cfg.HistoryCapacity)
	if s.redis == nil {
		return execRing, accessRing, nil
	}
	execSink, err := history.NewRedisSink[history.ExecutionRecord](history.RedisConfig{
		Client: s.redis,
		Key:    s.cfg.RedisPrefix + "history:executions",
		MaxLen: int64(s.cfg.HistoryCapacity),
		Logger: s.log,
	})
	if err != nil {
		return nil, nil, err
	}
	accessSink, err := history.NewRedisSink[history.AccessRecord](history.RedisConfig{
		Client: s.redis,
		Key:    s.cfg.RedisPrefix + "history:access",
		MaxLen: int64(s.cfg.HistoryCapacity),
		Logger: s.log,
	})
	if err != nil {
		return nil, nil, err
	}
	return history.Tee[history.ExecutionRecord](execRing, execSink), history.Tee[history.AccessRecord](accessRing, accessSink), nil
}

// background starts the session sweeper and the prompt directory watcher.
func (s *server) background(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error {
		s.store.RunSweeper(ctx, s.cfg.SweepInterval)
		return nil
	})
	if prompts := s.eng.Registries().Prompts; s.cfg.PromptDir != "" && prompts != nil {
		g.Go(func() error {
			if err := mcpservice.WatchPromptDir(ctx, s.cfg.PromptDir, prompts); err != nil {
				s.log.WarnContext(ctx, "prompts.dir.watch.fail", slog.String("dir", s.cfg.PromptDir), slog.String("err", err.Error()))
			}
			return nil
		})
	}
}

func (s *server) close() {
	s.eng.Close()
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func (s *server) broker() (broker.Broker, error) {
	if s.redis == nil {
		return memory.New(), nil
	}
	return brokerredis.New(brokerredis.Config{Client: s.redis, KeyPrefix: s.cfg.RedisPrefix + "broker:"})
}

func runStdio(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	s, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	s.background(gctx, g)

	h := stdio.NewHandler(s.eng, stdio.WithLogger(log))
	g.Go(func() error {
		s.eng.WatchListChanges(gctx, h)
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return h.Serve(gctx)
	})
	return g.Wait()
}

func runHTTP(ctx context.Context, cfg *config.Config) error {
	log, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	s, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer s.close()

	router, writer, err := s.routes(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	// Long-lived SSE and WebSocket requests end when gctx is cancelled.
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return gctx },
	}
	s.background(gctx, g)
	g.Go(func() error {
		s.eng.WatchListChanges(gctx, writer)
		return nil
	})
	g.Go(func() error {
		log.InfoContext(gctx, "http.server.start", slog.String("addr", cfg.Addr), slog.String("base_path", cfg.BasePath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.InfoContext(shutdownCtx, "http.server.stop")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// routes mounts the WebSocket endpoint next to the HTTP transport and returns
// the writer fanning notifications out to both.
func (s *server) routes(ctx context.Context) (http.Handler, engine.MessageWriter, error) {
	cfg := s.cfg
	authn, prm, err := buildAuthenticator(ctx, cfg, s.log)
	if err != nil {
		return nil, nil, err
	}
	b, err := s.broker()
	if err != nil {
		return nil, nil, err
	}

	httpOpts := []streaminghttp.Option{
		streaminghttp.WithLogger(s.log),
		streaminghttp.WithBroker(b),
		streaminghttp.WithAuthenticator(authn),
		streaminghttp.WithRequireAuth(cfg.RequireAuth),
		streaminghttp.WithHeartbeat(cfg.Heartbeat),
		streaminghttp.WithCORS(cfg.Origins()...),
		streaminghttp.WithBasePath(cfg.BasePath),
		streaminghttp.WithRealm(cfg.ServerName),
	}
	if prm != nil {
		httpOpts = append(httpOpts, streaminghttp.WithResourceMetadata(*prm))
	}
	httpH, err := streaminghttp.New(s.eng, httpOpts...)
	if err != nil {
		return nil, nil, err
	}
	s.onExpire = func(id string) { httpH.Forget(context.Background(), id) }

	wsOpts := []websocket.Option{
		websocket.WithLogger(s.log),
		websocket.WithAuthenticator(authn),
		websocket.WithRequireKey(cfg.RequireAuth),
		websocket.WithHeartbeat(cfg.Heartbeat),
	}
	if cfg.WSRate > 0 {
		wsOpts = append(wsOpts, websocket.WithRateLimit(rate.Limit(cfg.WSRate), cfg.WSBurst))
	}
	if origins := cfg.Origins(); len(origins) > 0 {
		wsOpts = append(wsOpts, websocket.WithOriginPatterns(origins...))
	}
	wsH, err := websocket.New(s.eng, wsOpts...)
	if err != nil {
		return nil, nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	r.Handle(cfg.BasePath+"/ws", wsH)
	r.Mount("/", httpH)
	return r, engine.MultiWriter(httpH, wsH), nil
}
