package echo

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/conveyorq/conveyor/pkg/config"
)

var log = logging.Logger("fx/echo")

var Module = fx.Module("echo",
	fx.Provide(
		NewEcho,
	),
	fx.Invoke(
		RegisterRoutes,
		StartEchoServer,
	),
)

// RouteRegistrar is implemented by services that mount Echo routes.
type RouteRegistrar interface {
	RegisterRoutes(e *echo.Echo)
}

// NewEcho creates an Echo instance with default middleware.
func NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(RequestLogger(logging.Logger("server")))
	e.Use(middleware.Recover())

	return e
}

// EchoServer wraps Echo with fx lifecycle management.
type EchoServer struct {
	echo *echo.Echo
	addr string
}

// StartEchoServer runs an Echo server with lifecycle management.
func StartEchoServer(cfg config.App, e *echo.Echo, lc fx.Lifecycle) (*EchoServer, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	server := &EchoServer{
		echo: e,
		addr: addr,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infof("Starting Echo server on %s", addr)
			go func() {
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorf("Echo server error: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down Echo server")
			return e.Shutdown(ctx)
		},
	})

	return server, nil
}

// RouteParams collects all route registrars.
type RouteParams struct {
	fx.In

	Registrars []RouteRegistrar `group:"route_registrar"`
}

// RegisterRoutes mounts routes from every collected registrar.
func RegisterRoutes(e *echo.Echo, params RouteParams) {
	log.Infof("Registering routes from %d registrars", len(params.Registrars))
	for _, registrar := range params.Registrars {
		registrar.RegisterRoutes(e)
	}
}

// Address returns the server's listening address.
func (s *EchoServer) Address() string {
	return s.addr
}
