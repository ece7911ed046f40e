package confapi

import "go.uber.org/fx"

var Module = fx.Module("confapi",
	fx.Provide(New),
)
