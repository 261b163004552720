package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/vault-nexus/internal/api"
	"github.com/nidhogg/vault-nexus/internal/config"
	"github.com/nidhogg/vault-nexus/internal/elephant"
	"github.com/nidhogg/vault-nexus/internal/events"
	"github.com/nidhogg/vault-nexus/internal/gateway"
	"github.com/nidhogg/vault-nexus/internal/hypercube"
	"github.com/nidhogg/vault-nexus/internal/memory"
	pgstore "github.com/nidhogg/vault-nexus/internal/store"
	"github.com/nidhogg/vault-nexus/internal/vectorstore"
	"github.com/nidhogg/vault-nexus/internal/world"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/nexus.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Vault Nexus...", zap.String("config", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Core stores
	cube := hypercube.New(hypercube.Config{
		MandateFraction: cfg.Ecosystem.MandateFraction(),
		PoolField:       cfg.Ecosystem.PoolField,
		LatencyBudget:   cfg.Ecosystem.LatencyBudget(),
	}, logger.Named("hypercube"))
	engine := elephant.NewEngine(cube, logger.Named("elephant"))

	// Postgres generation archive + cycle log (optional)
	var pg *pgstore.Store
	if dsn := cfg.Database.Postgres.DSN; dsn != "" {
		s, err := pgstore.New(ctx, dsn, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, cycles will not be archived", zap.Error(err))
		} else if applied, err := s.Migrate(ctx, cfg.Server.MigrationsDir); err != nil {
			logger.Warn("PostgreSQL migration failed", zap.Error(err))
			s.Close()
		} else {
			pg = s
			defer pg.Close()
			logger.Info("PostgreSQL connected", zap.Int("migrations_applied", len(applied)))
		}
	}

	// Neo4j association graph (optional)
	var graph *memory.Store
	if uri := cfg.Database.Neo4j.URI; uri != "" {
		s, err := memory.NewStore(uri, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if err != nil {
			logger.Warn("Neo4j driver not created", zap.Error(err))
		} else if err := s.EnsureSchema(ctx); err != nil {
			logger.Warn("Neo4j not available, associations will not be mirrored", zap.Error(err))
			s.Close(context.Background())
		} else {
			graph = s
			defer graph.Close(context.Background())
			logger.Info("Neo4j connected")
		}
	}

	// Qdrant coordinate mirror (optional)
	var mirror *vectorstore.Mirror
	if host := cfg.Database.Qdrant.Host; host != "" {
		client, err := vectorstore.NewClient(vectorstore.QdrantConfig{Host: host, Port: cfg.Database.Qdrant.Port})
		if err != nil {
			logger.Warn("Qdrant not available, similarity search disabled", zap.Error(err))
		} else {
			defer client.Close()
			mirror = vectorstore.NewMirror(client, cfg.Database.Qdrant.Collection, cfg.Database.Qdrant.Buffer, logger)
			cube.OnStore(mirror.Enqueue)
		}
	}

	// Breath cycle and realtime gateway
	breath := world.NewBreathCycle(cfg.Ecosystem.BreathPeriod(), engine, logger)

	gw := gateway.NewGateway(logger)
	ws := gateway.NewWebSocketAdapter(gateway.WebSocketOptions{
		Heartbeat:  time.Duration(cfg.Gateway.WebSocket.HeartbeatSeconds) * time.Second,
		SendBuffer: cfg.Gateway.WebSocket.SendBuffer,
		Cycle:      breath.Cycle,
		Stats: func() any {
			return map[string]any{
				"hypercube":    cube.Stats(),
				"elephant":     engine.Stats(),
				"breath_cycle": breath.Cycle(),
			}
		},
	}, logger)
	gw.Register(ws)

	if sc := cfg.Gateway.Slack; sc.Enabled && sc.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(gateway.SlackOptions{
			BotToken:  sc.BotToken,
			ChannelID: sc.ChannelID,
			Username:  sc.Username,
			IconEmoji: sc.IconEmoji,
		}, logger))
	}
	if dc := cfg.Gateway.Discord; dc.Enabled && dc.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(dc.BotToken, dc.ChannelID, logger))
	}

	var stream *events.Stream
	if rc := cfg.Database.Redis; rc.URL != "" {
		s, err := events.NewStream(rc.URL, rc.StreamKey, rc.MaxLen, logger)
		if err != nil {
			logger.Warn("Redis stream disabled", zap.Error(err))
		} else {
			stream = s
			gw.Register(stream)
		}
	}

	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}
	broadcaster := gateway.NewBroadcaster(gw, logger)

	rl := &relay{broadcaster: broadcaster, logger: logger}
	if pg != nil {
		rl.cycles = pg
	}
	if graph != nil {
		rl.graph = graph
	}
	breath.Handle(rl.onBreath)

	clock := world.NewClock(cfg.Ecosystem.TickInterval(), logger)
	clock.AddListener(breath)

	// Periodic exports
	var exports *world.ExportScheduler
	if cfg.Export.Enabled {
		s, err := world.NewExportScheduler(cfg.Export.Schedule, cfg.Export.Dir, cfg.Export.Compress, logger)
		if err != nil {
			logger.Warn("export scheduler disabled", zap.Error(err))
		} else {
			s.Add("hypercube", cube)
			s.Add("elephant", engine)
			s.Handle(rl.onExport)
			exports = s
		}
	}

	// HTTP API
	apiOpts := api.Options{
		Breath:       breath,
		Realtime:     ws,
		Gateway:      gw,
		Broadcaster:  broadcaster,
		OnCycle:      rl.onCycle,
		OnAdvance:    rl.onAdvance,
		RateLimit:    cfg.API.RateLimitPerSec,
		Burst:        cfg.API.Burst,
		CORSOrigins:  cfg.API.CORSOrigins,
		MaxBodyBytes: cfg.API.MaxBodyBytes,
	}
	if pg != nil {
		apiOpts.Cycles = pg
	}
	if graph != nil {
		apiOpts.Graph = graph
	}
	if stream != nil && stream.Status().Connected {
		apiOpts.Events = stream
	}
	if mirror != nil {
		apiOpts.Similar = mirror
	}
	handler := api.NewHandler(cube, engine, apiOpts, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Vault Nexus listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if mirror != nil {
		g.Go(func() error {
			if err := mirror.Run(gctx); err != nil {
				logger.Warn("vector mirror disabled, similarity search unavailable", zap.Error(err))
			}
			return nil
		})
	}

	clock.Start(gctx)
	if exports != nil {
		exports.Start()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down Vault Nexus...")
		clock.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownSeconds)*time.Second)
		defer cancel()
		if exports != nil {
			if err := exports.Stop(shutdownCtx); err != nil {
				logger.Warn("export round still running at shutdown", zap.Error(err))
			}
		}
		if err := gw.Close(); err != nil {
			logger.Warn("gateway close", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Vault Nexus exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Vault Nexus stopped")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "" {
		return zap.NewDevelopment()
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}
