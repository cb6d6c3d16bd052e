package health

import (
	"context"

	"go.uber.org/fx"

	echofx "github.com/conveyorq/conveyor/pkg/fx/echo"
)

var Module = fx.Module("health",
	fx.Provide(
		NewChecker,
		fx.Annotate(
			NewHandler,
			fx.As(new(echofx.RouteRegistrar)),
			fx.ResultTags(`group:"route_registrar"`),
		),
	),
	fx.Invoke(MarkReady),
)

// MarkReady flips readiness with the application lifecycle: ready after every
// OnStart hook before it has run, not ready once shutdown begins.
func MarkReady(lc fx.Lifecycle, c *Checker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			c.SetReady(true)
			return nil
		},
		OnStop: func(context.Context) error {
			c.SetReady(false)
			return nil
		},
	})
}
