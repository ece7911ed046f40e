package store

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
)

func snapshotOf(marker string, ids ...string) conference.Snapshot {
	sessions := make(map[string]conference.Session, len(ids))
	for _, id := range ids {
		sessions[id] = conference.Session{ID: id, Title: "talk " + id}
	}
	return conference.Snapshot{Order: ids, Sessions: sessions, LastUpdate: marker}
}

func TestNew_StartsEmpty(t *testing.T) {
	s := New()

	snap, bookmarks := s.View()
	assert.True(t, snap.Empty())
	assert.Equal(t, 0, bookmarks.Len())
	assert.Equal(t, "", s.LastUpdate())
}

func TestReplaceSnapshot_RejectsStale(t *testing.T) {
	s := New()

	slow := s.Begin() // initial fetch, issued first
	fast := s.Begin() // refresh, issued second

	require.NoError(t, s.ReplaceSnapshot(fast, snapshotOf("t2", "s1", "s2")))
	err := s.ReplaceSnapshot(slow, snapshotOf("t1", "s1"))
	require.ErrorIs(t, err, cserrs.ErrStale)

	assert.Equal(t, "t2", s.LastUpdate())
	assert.Len(t, s.Snapshot().Sessions, 2)
}

func TestReplaceBookmarks_RejectsStale(t *testing.T) {
	s := New()

	first := s.Begin()
	second := s.Begin()

	require.NoError(t, s.ReplaceBookmarks(second, conference.NewBookmarks("s2")))
	require.ErrorIs(t, s.ReplaceBookmarks(first, conference.NewBookmarks("s1")), cserrs.ErrStale)
	assert.Equal(t, []string{"s2"}, s.Bookmarks().IDs())
}

func TestToggleAndSet(t *testing.T) {
	s := New()

	assert.True(t, s.ToggleBookmarkLocally("s1"))
	assert.True(t, s.Bookmarks().Has("s1"))
	assert.False(t, s.ToggleBookmarkLocally("s1"))
	assert.False(t, s.Bookmarks().Has("s1"))

	s.SetBookmarked("s2", true)
	s.SetBookmarked("s2", true)
	assert.Equal(t, []string{"s2"}, s.Bookmarks().IDs())
	s.SetBookmarked("s2", false)
	assert.Equal(t, 0, s.Bookmarks().Len())
}

func TestReadersKeepTheirValue(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceBookmarks(s.Begin(), conference.NewBookmarks("s1")))

	held := s.Bookmarks()
	s.ToggleBookmarkLocally("s2")

	assert.Equal(t, []string{"s1"}, held.IDs())
	assert.Equal(t, []string{"s1", "s2"}, s.Bookmarks().IDs())
}

func TestPatchSnapshot_DoesNotBlockPendingFetch(t *testing.T) {
	s := New()
	require.NoError(t, s.ReplaceSnapshot(s.Begin(), snapshotOf("t1", "s1")))

	pending := s.Begin()
	s.PatchSnapshot(func(snap conference.Snapshot) conference.Snapshot {
		patched, _ := snap.WithRating("s1", conference.Rating{Avg: 4, Count: 1})
		return patched
	})
	assert.Equal(t, 4.0, s.Snapshot().Sessions["s1"].Rating.Avg)

	require.NoError(t, s.ReplaceSnapshot(pending, snapshotOf("t2", "s1", "s2")))
	assert.Equal(t, "t2", s.LastUpdate())
}

func TestConcurrentWriters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.ReplaceSnapshot(s.Begin(), snapshotOf("t", "s1", "s2"))
		}()
		go func() {
			defer wg.Done()
			snap, _ := s.View()
			if !snap.Empty() {
				assert.Len(t, snap.Order, 2)
			}
		}()
	}
	wg.Wait()
}
