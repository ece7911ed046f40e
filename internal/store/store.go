// Package store keeps the in-memory conference snapshot and bookmark set.
//
// Every write swaps a whole value under the lock, so a reader gets either the
// value from before a write or the one after it and nothing in between.
package store

import (
	"log/slog"
	"sync"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
)

// Store is the authoritative local copy of what the server told us.
//
// Its zero value is not usable, use [New].
type Store struct {
	mu sync.RWMutex

	issued      uint64 // Last sequence handed out by Begin
	snapshotSeq uint64 // Sequence of the snapshot currently held
	bookmarkSeq uint64 // Sequence of the bookmark list currently held

	snapshot  conference.Snapshot
	bookmarks conference.Bookmarks
}

// New creates a store holding an empty snapshot and no bookmarks.
func New() *Store {
	return &Store{
		bookmarks: conference.NewBookmarks(),
	}
}

// Begin hands out the sequence number a fetch should carry back to
// ReplaceSnapshot or ReplaceBookmarks.
//
// Call it when the request is issued, not when it resolves.
func (s *Store) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued++
	return s.issued
}

// ReplaceSnapshot swaps in a snapshot fetched under seq.
//
// A snapshot from a request issued before the one currently applied is
// rejected with [cserrs.ErrStale].
func (s *Store) ReplaceSnapshot(seq uint64, snap conference.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.snapshotSeq {
		slog.Debug("rejecting stale snapshot", "seq", seq, "applied_seq", s.snapshotSeq)
		return cserrs.ErrStale
	}

	s.snapshot = snap
	s.snapshotSeq = seq
	return nil
}

// PatchSnapshot applies fn to the current snapshot atomically.
//
// fn must return a new value rather than modifying the maps it was given. The
// applied sequence is left alone so an in-flight fetch can still land.
func (s *Store) PatchSnapshot(fn func(conference.Snapshot) conference.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot = fn(s.snapshot)
}

// ReplaceBookmarks swaps in a bookmark list fetched under seq.
func (s *Store) ReplaceBookmarks(seq uint64, b conference.Bookmarks) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq < s.bookmarkSeq {
		slog.Debug("rejecting stale bookmarks", "seq", seq, "applied_seq", s.bookmarkSeq)
		return cserrs.ErrStale
	}

	s.bookmarks = b
	s.bookmarkSeq = seq
	return nil
}

// ToggleBookmarkLocally flips a session's membership before the server has
// confirmed anything. Returns the new membership.
func (s *Store) ToggleBookmarkLocally(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bookmarks.Has(sessionID) {
		s.bookmarks = s.bookmarks.Without(sessionID)
		return false
	}
	s.bookmarks = s.bookmarks.With(sessionID)
	return true
}

// SetBookmarked forces a session's membership, used to reconcile with the server.
func (s *Store) SetBookmarked(sessionID string, bookmarked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bookmarks.Has(sessionID) == bookmarked {
		return
	}
	if bookmarked {
		s.bookmarks = s.bookmarks.With(sessionID)
		return
	}
	s.bookmarks = s.bookmarks.Without(sessionID)
}

func (s *Store) Snapshot() conference.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot
}

func (s *Store) Bookmarks() conference.Bookmarks {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.bookmarks
}

// View reads both values under one lock so they're consistent with each other.
func (s *Store) View() (conference.Snapshot, conference.Bookmarks) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot, s.bookmarks
}

// LastUpdate is the marker of the snapshot held, empty on a cold start.
func (s *Store) LastUpdate() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshot.LastUpdate
}
