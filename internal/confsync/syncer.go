package confsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/refresh"
	"github.com/jdholdren/confsync/internal/store"
)

type (
	// Board shows toasts and the loading indicator.
	Board interface {
		notify.Notifier
		StartLoading() func()
	}

	// BookmarkLoader pulls the bookmark list into the store.
	BookmarkLoader interface {
		Load(ctx context.Context) error
	}
)

// Syncer keeps the store's conference current, on a schedule and on demand.
type Syncer struct {
	fetcher    *Fetcher
	store      *store.Store
	board      Board
	bookmarks  BookmarkLoader
	controller *refresh.Controller
}

func NewSyncer(fetcher *Fetcher, st *store.Store, board Board, bookmarks BookmarkLoader, cfg refresh.Config) *Syncer {
	s := &Syncer{
		fetcher:   fetcher,
		store:     st,
		board:     board,
		bookmarks: bookmarks,
	}
	s.controller = refresh.New(s.Refresh, cfg)

	return s
}

// Start kicks off the schedule, whose first run fetches the conference, and
// loads the bookmarks next to it.
//
// Both keep going in the background until ctx is done or Stop is called.
func (s *Syncer) Start(ctx context.Context) {
	s.controller.Start(ctx)

	go func() {
		if err := s.bookmarks.Load(ctx); err != nil {
			slog.WarnContext(ctx, "initial bookmark load failed", "error", err)
		}
	}()
}

// Stop tears the schedule down.
func (s *Syncer) Stop() {
	s.controller.Cancel()
}

// Refresh fetches once and updates the store. It reports the delay the server
// asked for before the next fetch.
//
// A failure leaves the store alone and raises an error toast. The loading
// indicator is up for the duration either way.
func (s *Syncer) Refresh(ctx context.Context) (time.Duration, error) {
	done := s.board.StartLoading()
	defer done()

	seq := s.store.Begin()
	res, err := s.fetcher.Fetch(ctx, s.store.LastUpdate())
	if err != nil {
		s.board.Notify(ctx, notify.Error(cserrs.UserMessage(err)))
		return 0, err
	}

	if res.Snapshot == nil {
		slog.DebugContext(ctx, "conference unchanged", "next_try_in", res.NextTryIn)
		return res.NextTryIn, nil
	}

	err = s.store.ReplaceSnapshot(seq, *res.Snapshot)
	if errors.Is(err, cserrs.ErrStale) {
		// A newer fetch already landed.
		return res.NextTryIn, nil
	}
	if err != nil {
		return 0, fmt.Errorf("error storing snapshot: %w", err)
	}

	slog.DebugContext(ctx, "stored conference",
		"sessions", len(res.Snapshot.Sessions),
		"last_update", res.Snapshot.LastUpdate,
		"next_try_in", res.NextTryIn,
	)
	return res.NextTryIn, nil
}

// Reload fetches the conference and the bookmark list side by side, like a pull
// to refresh. On a successful conference fetch the schedule restarts from the
// delay the server returned, if it returned one.
func (s *Syncer) Reload(ctx context.Context) error {
	var (
		next    time.Duration
		confErr error
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		next, confErr = s.Refresh(ctx)
		return confErr
	})
	g.Go(func() error {
		return s.bookmarks.Load(ctx)
	})
	err := g.Wait()

	if confErr == nil && next > 0 {
		s.controller.ScheduleNext(next)
	}

	return err
}

// Reset starts over from the acronym: the stored conference id, the snapshot
// and the bookmarks are dropped, then everything is loaded again.
func (s *Syncer) Reset(ctx context.Context) error {
	if err := s.fetcher.Forget(ctx); err != nil {
		return err
	}

	seq := s.store.Begin()
	if err := s.store.ReplaceSnapshot(seq, conference.Snapshot{}); err != nil {
		return fmt.Errorf("error clearing snapshot: %w", err)
	}
	if err := s.store.ReplaceBookmarks(seq, conference.NewBookmarks()); err != nil {
		return fmt.Errorf("error clearing bookmarks: %w", err)
	}

	slog.InfoContext(ctx, "conference reset")
	return s.Reload(ctx)
}

// NextRefresh is when the scheduled refresh goes off, and whether one is pending.
func (s *Syncer) NextRefresh() (time.Time, bool) {
	if _, ok := s.controller.Pending(); !ok {
		return time.Time{}, false
	}
	return s.controller.Due(), true
}
