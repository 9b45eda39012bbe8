package visit

import "go.uber.org/fx"

var Module = fx.Module("visit",
	fx.Provide(
		NewWriter,
	),
)
