// Package projection derives the denormalized views the rendering layer draws.
//
// Everything here is a pure function of a snapshot and a bookmark set.
package projection

import (
	"slices"
	"time"

	"github.com/jdholdren/confsync/internal/conference"
)

// DisplaySession is a session joined with the entities it references.
type DisplaySession struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	Start     time.Time             `json:"start"`
	End       time.Time             `json:"end"`
	Duration  int                   `json:"duration"`
	Room      conference.Room       `json:"room"`
	Track     conference.Track      `json:"track"`
	Lecturers []conference.Lecturer `json:"lecturers"`
	Rating    conference.Rating     `json:"rating"`
}

// MySchedule lists the bookmarked sessions in the snapshot's own order.
//
// Bookmarks pointing at sessions the snapshot doesn't have are skipped, and
// references to unknown rooms, tracks or lecturers resolve to zero values.
func MySchedule(snap conference.Snapshot, bookmarks conference.Bookmarks) []DisplaySession {
	out := []DisplaySession{}
	if bookmarks.Len() == 0 {
		return out
	}

	for _, id := range snap.Order {
		if !bookmarks.Has(id) {
			continue
		}
		sess, ok := snap.Sessions[id]
		if !ok {
			continue
		}
		out = append(out, display(snap, id, sess))
	}

	return out
}

func display(snap conference.Snapshot, id string, sess conference.Session) DisplaySession {
	lecturers := make([]conference.Lecturer, 0, len(sess.LecturerIDs))
	for _, lid := range sess.LecturerIDs {
		if l, ok := snap.Lecturers[lid]; ok {
			lecturers = append(lecturers, l)
		}
	}

	ds := DisplaySession{
		ID:        id,
		Title:     sess.Title,
		Start:     sess.Start.Time,
		Duration:  sess.Duration,
		Room:      snap.Rooms[sess.RoomID],
		Track:     snap.Tracks[sess.TrackID],
		Lecturers: lecturers,
		Rating:    sess.Rating,
	}
	if !ds.Start.IsZero() {
		ds.End = ds.Start.Add(time.Duration(sess.Duration) * time.Second)
	}

	return ds
}

// Filter narrows a projection to a day and/or a set of tracks.
//
// The zero Filter lets everything through.
type Filter struct {
	Day      time.Time
	TrackIDs []string
}

// Apply keeps the sessions matching f, preserving order.
func (f Filter) Apply(sessions []DisplaySession) []DisplaySession {
	out := make([]DisplaySession, 0, len(sessions))
	for _, s := range sessions {
		if !f.Day.IsZero() && !sameDay(f.Day, s.Start) {
			continue
		}
		if len(f.TrackIDs) > 0 && !slices.Contains(f.TrackIDs, s.Track.ID) {
			continue
		}
		out = append(out, s)
	}

	return out
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
