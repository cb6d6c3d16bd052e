package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/conveyorq/conveyor/pkg/config"
	echofx "github.com/conveyorq/conveyor/pkg/fx/echo"
	"github.com/conveyorq/conveyor/pkg/fx/engine"
	"github.com/conveyorq/conveyor/pkg/health"
	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/registry"
)

var log = logging.Logger("cmd/serve")

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the job engine and its HTTP API.",
	Args:  cobra.NoArgs,
	RunE:  startServer,
}

func init() {
	Cmd.Flags().String("host", "", "host interface to listen on")
	cobra.CheckErr(viper.BindPFlag(string(config.ServerHost), Cmd.Flags().Lookup("host")))

	Cmd.Flags().Uint("port", 0, "port to listen on")
	cobra.CheckErr(viper.BindPFlag(string(config.ServerPort), Cmd.Flags().Lookup("port")))

	Cmd.Flags().String("store-backend", "", "job store backend (memory or redis)")
	cobra.CheckErr(viper.BindPFlag(string(config.StoreBackend), Cmd.Flags().Lookup("store-backend")))

	Cmd.Flags().String("redis-addr", "", "redis address (host:port)")
	cobra.CheckErr(viper.BindPFlag(string(config.RedisAddr), Cmd.Flags().Lookup("redis-addr")))

	Cmd.Flags().Int("concurrency", 0, "maximum concurrent job executions")
	cobra.CheckErr(viper.BindPFlag(string(config.WorkerMaximumConcurrency), Cmd.Flags().Lookup("concurrency")))

	Cmd.Flags().String("worker-id", "", "stable worker id (uuid); empty mints a fresh one per process")
	cobra.CheckErr(viper.BindPFlag(string(config.WorkerID), Cmd.Flags().Lookup("worker-id")))
}

// registerBuiltinHandlers mounts the handlers the standalone binary ships
// with. Embedding services contribute their own through engine.AsJobRegistrar.
func registerBuiltinHandlers(r *registry.Registry) error {
	return registry.Register(r, "echo", func(_ context.Context, ac *registry.Context[json.RawMessage]) job.Result[json.RawMessage] {
		return job.Success(ac.Request)
	})
}

func startServer(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load[config.App]()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fxApp := fx.New(
		fx.RecoverFromPanics(),
		fx.WithLogger(func() fxevent.Logger {
			el := &fxevent.ZapLogger{Logger: log.Desugar()}
			el.UseLogLevel(zapcore.DebugLevel)
			return el
		}),
		fx.Supply(cfg),
		engine.AsJobRegistrar(registerBuiltinHandlers),
		engine.Module,
		health.Module,
		echofx.Module,
	)

	if err := fxApp.Err(); err != nil {
		return fmt.Errorf("initializing conveyor: %w", err)
	}

	if err := fxApp.Start(ctx); err != nil {
		return fmt.Errorf("starting conveyor: %w", err)
	}
	cmd.Println(fmt.Sprintf("Conveyor running on %s:%d (store: %s)",
		cfg.Server.Host, cfg.Server.Port, cfg.Store.Backend))

	// block: wait for a shutdown signal
	<-ctx.Done()
	log.Info("received shutdown signal, beginning graceful shutdown")

	shutdownTimeout := cfg.Worker.ShutdownTimeout + 5*time.Second
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := fxApp.Stop(stopCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Errorf("graceful shutdown timed out after %s", shutdownTimeout.String())
		}
		return fmt.Errorf("stopping conveyor: %w", err)
	}
	log.Info("conveyor stopped")
	return nil
}
