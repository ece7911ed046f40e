// Package bookmarks keeps the user's "My Schedule" set in line with the server.
package bookmarks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/logger"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/store"
)

const (
	msgBookmarked = "Session bookmarked"
	msgRemoved    = "Session removed from bookmarks"
)

type (
	// API is the slice of the conference API this package calls.
	API interface {
		Bookmarks(ctx context.Context, conferenceID string) ([]string, error)
		ToggleBookmark(ctx context.Context, sessionID string) (bool, error)
	}

	// ConferenceResolver knows which conference the user is looking at.
	ConferenceResolver interface {
		ConferenceID(ctx context.Context) (string, error)
	}

	// Result is the outcome of a toggle.
	Result struct {
		SessionID  string
		Bookmarked bool
		// Set when a later toggle of the same session was issued before this
		// one came back; the response was not applied.
		Superseded bool
	}
)

// Synchronizer toggles bookmarks on the server and reconciles the store.
type Synchronizer struct {
	api         API
	conferences ConferenceResolver
	store       *store.Store
	notifier    notify.Notifier
	optimistic  bool

	mu     sync.Mutex
	latest map[string]string // Session id to the token of the newest toggle
}

type Options struct {
	// Flip the local set before the server answers.
	Optimistic bool
}

func New(api API, conferences ConferenceResolver, st *store.Store, notifier notify.Notifier, opts Options) *Synchronizer {
	return &Synchronizer{
		api:         api,
		conferences: conferences,
		store:       st,
		notifier:    notifier,
		optimistic:  opts.Optimistic,
		latest:      make(map[string]string),
	}
}

// Load replaces the local set with the server's list.
//
// A failed load leaves the set alone and doesn't notify.
func (s *Synchronizer) Load(ctx context.Context) error {
	seq := s.store.Begin()

	confID, err := s.conferences.ConferenceID(ctx)
	if err != nil {
		return fmt.Errorf("error resolving conference: %w", err)
	}

	ids, err := s.api.Bookmarks(ctx, confID)
	if err != nil {
		slog.WarnContext(ctx, "error loading bookmarks", "error", err)
		return fmt.Errorf("error loading bookmarks: %w", err)
	}

	err = s.store.ReplaceBookmarks(seq, conference.NewBookmarks(ids...))
	if errors.Is(err, cserrs.ErrStale) {
		return nil // A newer load already landed
	}
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "loaded bookmarks", "count", len(ids))
	return nil
}

// Toggle flips a session's bookmark on the server and mirrors the answer locally.
//
// Only the newest toggle of a session is applied; earlier responses that come
// back after it was issued are dropped.
func (s *Synchronizer) Toggle(ctx context.Context, sessionID string) (Result, error) {
	token := s.issue(sessionID)
	ctx = logger.Ctx(ctx, slog.String("session_id", sessionID), slog.String("toggle_token", token))

	before := s.store.Bookmarks().Has(sessionID)
	if s.optimistic {
		s.store.ToggleBookmarkLocally(sessionID)
	}

	bookmarked, err := s.api.ToggleBookmark(ctx, sessionID)
	current := s.settle(sessionID, token)

	if err != nil {
		// A newer toggle owns the session's state and its toast.
		if current {
			if s.optimistic {
				s.store.SetBookmarked(sessionID, before)
			}
			s.notifier.Notify(ctx, notify.Error(cserrs.UserMessage(err)))
		}
		return Result{}, fmt.Errorf("error toggling bookmark: %w", err)
	}

	if !current {
		slog.DebugContext(ctx, "dropping superseded toggle response", "bookmarked", bookmarked)
		return Result{SessionID: sessionID, Bookmarked: bookmarked, Superseded: true}, nil
	}

	s.store.SetBookmarked(sessionID, bookmarked)

	msg := msgRemoved
	if bookmarked {
		msg = msgBookmarked
	}
	s.notifier.Notify(ctx, notify.Info(msg))

	return Result{SessionID: sessionID, Bookmarked: bookmarked}, nil
}

func (s *Synchronizer) issue(sessionID string) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[sessionID] = token

	return token
}

// Reports whether token is still the newest for the session, forgetting it if so.
func (s *Synchronizer) settle(sessionID, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest[sessionID] != token {
		return false
	}
	delete(s.latest, sessionID)
	return true
}
