package server

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/jdholdren/confsync/internal/bookmarks"
	"github.com/jdholdren/confsync/internal/confsync"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/store"
)

type Params struct {
	fx.In

	Config    Config
	Store     *store.Store
	Bookmarks *bookmarks.Synchronizer
	Ratings   *confsync.Ratings
	Questions *confsync.Questions
	Syncer    *confsync.Syncer
	Board     *notify.Board
}

var Module = fx.Module("server",
	fx.Provide(
		newServer,
	),
)

func newServer(lc fx.Lifecycle, p Params) *Server {
	srvr := NewServer(p.Config, Deps{
		Store:     p.Store,
		Bookmarks: p.Bookmarks,
		Ratings:   p.Ratings,
		Questions: p.Questions,
		Syncer:    p.Syncer,
		Board:     p.Board,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srvr.ListenAndServe()

			slog.Debug("started local server", "addr", srvr.Addr)

			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srvr.Shutdown(ctx)
		},
	})

	return srvr
}
