package confsync

import (
	"context"

	"go.uber.org/fx"

	"github.com/jdholdren/confsync/internal/bookmarks"
	"github.com/jdholdren/confsync/internal/confapi"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/refresh"
	"github.com/jdholdren/confsync/internal/securestore"
	"github.com/jdholdren/confsync/internal/store"
)

type Params struct {
	fx.In

	Ctx       context.Context // Lives as long as the process
	Fetcher   *Fetcher
	Store     *store.Store
	Board     *notify.Board
	Bookmarks *bookmarks.Synchronizer
	Refresh   refresh.Config
}

var Module = fx.Module("confsync",
	fx.Provide(
		func(c *confapi.Client, s *securestore.Store, cfg FetcherConfig) *Fetcher {
			return NewFetcher(c, s, cfg)
		},
		func(f *Fetcher) bookmarks.ConferenceResolver { return f },
		func(c *confapi.Client) bookmarks.API { return c },
		func(b *notify.Board) notify.Notifier { return b },
		func(c *confapi.Client, st *store.Store, b *notify.Board) *Ratings { return NewRatings(c, st, b) },
		func(c *confapi.Client, b *notify.Board) *Questions { return NewQuestions(c, b) },
		newSyncer,
	),
)

func newSyncer(lc fx.Lifecycle, p Params) *Syncer {
	s := NewSyncer(p.Fetcher, p.Store, p.Board, p.Bookmarks, p.Refresh)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start(p.Ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			s.Stop()
			return nil
		},
	})

	return s
}
