package usage

import "go.uber.org/fx"

var Module = fx.Module("usage",
	fx.Provide(NewRecorder),
)
