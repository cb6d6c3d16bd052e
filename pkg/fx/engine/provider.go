// Package engine assembles the job engine: store, manager, registry,
// executor, processor and worker, wired through fx with lifecycle hooks.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/conveyorq/conveyor/pkg/config"
	"github.com/conveyorq/conveyor/pkg/executor"
	echofx "github.com/conveyorq/conveyor/pkg/fx/echo"
	"github.com/conveyorq/conveyor/pkg/health"
	"github.com/conveyorq/conveyor/pkg/httpapi"
	"github.com/conveyorq/conveyor/pkg/manager"
	"github.com/conveyorq/conveyor/pkg/processor"
	"github.com/conveyorq/conveyor/pkg/registry"
	"github.com/conveyorq/conveyor/pkg/store"
	memorystore "github.com/conveyorq/conveyor/pkg/store/memory"
	redisstore "github.com/conveyorq/conveyor/pkg/store/redis"
	"github.com/conveyorq/conveyor/pkg/worker"
)

var log = logging.Logger("fx/engine")

var Module = fx.Module("engine",
	fx.Provide(
		ProvideStore,
		ProvideStoreProbe,
		ProvideManager,
		ProvideRegistry,
		ProvideExecutor,
		processor.New,
		ProvideWorker,
		fx.Annotate(
			httpapi.NewAPI,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
	fx.Invoke(
		StartWorker,
	),
)

// ProvideStore selects the job store backend from configuration. The redis
// store is dialed on startup and closed on shutdown; the in-memory store has
// no lifecycle.
func ProvideStore(lc fx.Lifecycle, cfg config.App) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		log.Info("using in-memory job store")
		return memorystore.New(), nil

	case config.StoreBackendRedis:
		s := redisstore.New(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), redisstore.WithClaimBatchSize(cfg.Worker.BatchSize))
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := s.Ping(ctx); err != nil {
					return fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
				}
				log.Infow("connected to redis job store", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Close()
			},
		})
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// ProvideStoreProbe exposes store connectivity to the readiness probe. The
// in-memory store has nothing to probe.
func ProvideStoreProbe(s store.Store) health.StoreProbe {
	if r, ok := s.(*redisstore.Store); ok {
		return r.Healthy
	}
	return nil
}

// ProvideManager creates the manager from configuration.
func ProvideManager(s store.Store, cfg config.App) *manager.Manager {
	return manager.New(s, manager.Config{
		DefaultMaxRetries: cfg.Manager.DefaultMaxRetries,
		RetryDelayBase:    cfg.Manager.RetryDelayBase,
	})
}

// RegistryParams collects handler registrars contributed by the embedding
// application through the job_registrar group.
type RegistryParams struct {
	fx.In
	Registrars []registry.Registrar `group:"job_registrar"`
}

// ProvideRegistry builds the handler registry and applies every contributed
// registrar. A registry with no handlers is valid; the HTTP API simply mounts
// no submit routes.
func ProvideRegistry(params RegistryParams) (*registry.Registry, error) {
	r := registry.New()
	for _, register := range params.Registrars {
		if err := register(r); err != nil {
			return nil, fmt.Errorf("registering job handlers: %w", err)
		}
	}
	return r, nil
}

// AsJobRegistrar contributes a handler registrar to the engine module.
func AsJobRegistrar(f registry.Registrar) fx.Option {
	return fx.Provide(fx.Annotate(
		func() registry.Registrar { return f },
		fx.ResultTags(`group:"job_registrar"`),
	))
}

// ProvideExecutor creates the executor over the registry.
func ProvideExecutor(r *registry.Registry) *executor.Executor {
	return executor.New(r)
}

// ProvideWorker creates the worker from configuration.
func ProvideWorker(m *manager.Manager, p *processor.Processor, s store.Store, cfg config.App) (*worker.Worker, error) {
	opts := []worker.Option{
		worker.WithMaximumConcurrency(cfg.Worker.MaximumConcurrency),
	}
	if cfg.Worker.ID != "" {
		id, err := uuid.Parse(cfg.Worker.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid worker.id %q: %w", cfg.Worker.ID, err)
		}
		opts = append(opts, worker.WithID(id))
	}
	opts = append(opts,
		worker.WithPollingInterval(cfg.Worker.PollingInterval),
		worker.WithMaximumQueueSize(cfg.Worker.MaximumQueueSize),
		worker.WithChannelSendTimeout(cfg.Worker.ChannelSendTimeout),
		worker.WithShutdownTimeout(cfg.Worker.ShutdownTimeout),
		worker.WithErrorDelay(cfg.Worker.ErrorDelay),
	)
	if cfg.Recovery.Enabled {
		opts = append(opts, worker.WithRecovery(
			cfg.Recovery.JobTimeout,
			cfg.Recovery.CheckInterval,
			cfg.Recovery.MaxRetries,
		))
	}
	return worker.New(m, p, s, opts...)
}

// StartWorker ties the worker's loops to the application lifecycle.
func StartWorker(lc fx.Lifecycle, w *worker.Worker) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Startup(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return w.Shutdown(ctx)
		},
	})
}
