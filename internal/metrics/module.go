// Package metrics provides Prometheus collectors and their Fx module.
package metrics

import (
	"go.uber.org/fx"
)

// Module provides the gateway metrics.
var Module = fx.Module("metrics",
	fx.Provide(NewMetrics),
)
