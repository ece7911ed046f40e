package bookmarks

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/store"
)

type fakeAPI struct {
	list    []string
	listErr error

	// Each toggle call takes the next answer off this channel when set
	answers chan answer
	// Used when answers is nil
	toggle func(sessionID string) (bool, error)
}

type answer struct {
	bookmarked bool
	err        error
}

func (f *fakeAPI) Bookmarks(ctx context.Context, conferenceID string) ([]string, error) {
	return f.list, f.listErr
}

func (f *fakeAPI) ToggleBookmark(ctx context.Context, sessionID string) (bool, error) {
	if f.answers != nil {
		a := <-f.answers
		return a.bookmarked, a.err
	}
	return f.toggle(sessionID)
}

type staticConference string

func (s staticConference) ConferenceID(ctx context.Context) (string, error) {
	return string(s), nil
}

type recorder struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (r *recorder) Notify(ctx context.Context, n notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.notes...)
}

func newSync(t *testing.T, api *fakeAPI, optimistic bool) (*Synchronizer, *store.Store, *recorder) {
	t.Helper()

	st := store.New()
	rec := &recorder{}
	return New(api, staticConference("c1"), st, rec, Options{Optimistic: optimistic}), st, rec
}

func TestToggle_Bookmarks(t *testing.T) {
	for _, optimistic := range []bool{true, false} {
		api := &fakeAPI{toggle: func(string) (bool, error) { return true, nil }}
		s, st, rec := newSync(t, api, optimistic)

		res, err := s.Toggle(context.Background(), "s2")
		require.NoError(t, err)
		assert.Equal(t, Result{SessionID: "s2", Bookmarked: true}, res)
		assert.True(t, st.Bookmarks().Has("s2"))
		assert.Equal(t, []notify.Notification{notify.Info("Session bookmarked")}, rec.all())
	}
}

func TestToggle_Unbookmarks(t *testing.T) {
	api := &fakeAPI{toggle: func(string) (bool, error) { return false, nil }}
	s, st, rec := newSync(t, api, true)
	require.NoError(t, st.ReplaceBookmarks(st.Begin(), conference.NewBookmarks("s1", "s2")))

	_, err := s.Toggle(context.Background(), "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, st.Bookmarks().IDs())
	assert.Equal(t, []notify.Notification{notify.Info("Session removed from bookmarks")}, rec.all())
}

func TestToggle_ServerAnswerWins(t *testing.T) {
	// The server says it's still bookmarked, even though we flipped it off locally.
	api := &fakeAPI{toggle: func(string) (bool, error) { return true, nil }}
	s, st, _ := newSync(t, api, true)
	require.NoError(t, st.ReplaceBookmarks(st.Begin(), conference.NewBookmarks("s2")))

	_, err := s.Toggle(context.Background(), "s2")
	require.NoError(t, err)
	assert.True(t, st.Bookmarks().Has("s2"))
}

func TestToggle_FailureRestoresSet(t *testing.T) {
	for _, optimistic := range []bool{true, false} {
		api := &fakeAPI{toggle: func(string) (bool, error) {
			return false, cserrs.E(http.StatusInternalServerError, "boom")
		}}
		s, st, rec := newSync(t, api, optimistic)
		require.NoError(t, st.ReplaceBookmarks(st.Begin(), conference.NewBookmarks("s1")))

		_, err := s.Toggle(context.Background(), "s2")
		require.Error(t, err)

		assert.Equal(t, []string{"s1"}, st.Bookmarks().IDs())
		notes := rec.all()
		require.Len(t, notes, 1)
		assert.Equal(t, notify.SeverityError, notes[0].Severity)
	}
}

func TestToggle_OptimisticFlipIsVisibleWhileInFlight(t *testing.T) {
	api := &fakeAPI{answers: make(chan answer)}
	s, st, _ := newSync(t, api, true)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Toggle(context.Background(), "s3")
	}()

	assert.Eventually(t, func() bool { return st.Bookmarks().Has("s3") }, time.Second, time.Millisecond)
	api.answers <- answer{bookmarked: true}
	<-done
	assert.True(t, st.Bookmarks().Has("s3"))
}

func TestToggle_LaterToggleWins(t *testing.T) {
	// Two toggles of the same session; the first one's response comes back last.
	first := make(chan answer)
	second := make(chan answer)
	var calls int
	var mu sync.Mutex
	api := &fakeAPI{toggle: func(string) (bool, error) {
		mu.Lock()
		calls++
		ch := first
		if calls == 2 {
			ch = second
		}
		mu.Unlock()

		a := <-ch
		return a.bookmarked, a.err
	}}
	s, st, rec := newSync(t, api, false)

	results := make(chan Result, 2)
	go func() {
		res, _ := s.Toggle(context.Background(), "s4")
		results <- res
	}()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	go func() {
		res, _ := s.Toggle(context.Background(), "s4")
		results <- res
	}()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, time.Millisecond)

	second <- answer{bookmarked: false}
	assert.False(t, (<-results).Superseded)
	first <- answer{bookmarked: true}
	assert.True(t, (<-results).Superseded)

	assert.False(t, st.Bookmarks().Has("s4"), "the second response decides")
	assert.Len(t, rec.all(), 1)
}

func TestToggle_SupersededFailureKeepsNewerState(t *testing.T) {
	first := make(chan answer)
	var calls int
	var mu sync.Mutex
	api := &fakeAPI{toggle: func(string) (bool, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		if n == 1 {
			a := <-first
			return a.bookmarked, a.err
		}
		return true, nil
	}}
	s, st, rec := newSync(t, api, true)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Toggle(context.Background(), "s5")
		errs <- err
	}()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, time.Millisecond)

	_, err := s.Toggle(context.Background(), "s5")
	require.NoError(t, err)
	require.True(t, st.Bookmarks().Has("s5"))

	first <- answer{err: errors.New("timeout")}
	require.Error(t, <-errs)
	assert.True(t, st.Bookmarks().Has("s5"), "an old failure must not revert a newer answer")
	assert.Equal(t, []notify.Notification{notify.Info("Session bookmarked")}, rec.all(), "no toast for the superseded failure")
}

func TestLoad(t *testing.T) {
	api := &fakeAPI{list: []string{"s1", "s3"}}
	s, st, rec := newSync(t, api, true)

	require.NoError(t, s.Load(context.Background()))
	assert.Equal(t, []string{"s1", "s3"}, st.Bookmarks().IDs())
	assert.Empty(t, rec.all())
}

func TestLoad_FailureKeepsSet(t *testing.T) {
	api := &fakeAPI{listErr: cserrs.E(0, "connection refused")}
	s, st, _ := newSync(t, api, true)
	require.NoError(t, st.ReplaceBookmarks(st.Begin(), conference.NewBookmarks("s1")))

	require.Error(t, s.Load(context.Background()))
	assert.Equal(t, []string{"s1"}, st.Bookmarks().IDs())
}
