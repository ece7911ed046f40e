package bookmarks

import "go.uber.org/fx"

var Module = fx.Module("bookmarks",
	fx.Provide(New),
)
