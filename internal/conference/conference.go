// Package conference holds the entities shared by the sync components: the
// conference snapshot and the user's bookmark set.
//
// Both are values. Nothing in here mutates a snapshot or bookmark set in place;
// the With* helpers hand back copies so readers holding the old value are never
// affected.
package conference

import (
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by lookups of things that were never stored.
var ErrNotFound = errors.New("resource not found")

type (
	// Session is a single talk or workshop.
	Session struct {
		ID          string    `json:"id"`
		Title       string    `json:"title"`
		Start       Timestamp `json:"start"`
		Duration    int       `json:"duration"` // Seconds
		RoomID      string    `json:"id_room"`
		TrackID     string    `json:"id_track"`
		LecturerIDs []string  `json:"id_lecturers"`
		Rating      Rating    `json:"-"`
	}

	Room struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}

	Lecturer struct {
		ID             string `json:"id"`
		DisplayName    string `json:"display_name"`
		ProfilePicture string `json:"profile_picture"`
		Organization   string `json:"organization"`
	}

	Track struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Color string `json:"color"`
	}

	// Snapshot is the full set of conference entities as last published by the server.
	//
	// Treat it as read-only: the maps are shared between every holder of the value.
	Snapshot struct {
		// Session ids in the order the server listed them.
		Order     []string
		Sessions  map[string]Session
		Rooms     map[string]Room
		Lecturers map[string]Lecturer
		Tracks    map[string]Track

		// Opaque marker handed back to the server to ask only for changes.
		LastUpdate string
	}
)

// Session looks a session up by id.
func (s Snapshot) Session(id string) (Session, bool) {
	sess, ok := s.Sessions[id]
	return sess, ok
}

// Empty is true for the snapshot a process starts with.
func (s Snapshot) Empty() bool {
	return len(s.Sessions) == 0
}

// WithRating returns a copy of the snapshot with one session's rating swapped.
//
// The session map is copied; every other map is shared.
func (s Snapshot) WithRating(sessionID string, r Rating) (Snapshot, bool) {
	sess, ok := s.Sessions[sessionID]
	if !ok {
		return s, false
	}

	sessions := make(map[string]Session, len(s.Sessions))
	for id, v := range s.Sessions {
		sessions[id] = v
	}
	sess.Rating = r
	sessions[sessionID] = sess

	s.Sessions = sessions
	return s, true
}

// Rating is the average score of a session and how many people voted.
//
// On the wire it's a two element array: [avg, count].
type Rating struct {
	Avg   float64
	Count int
}

func (r Rating) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{r.Avg, float64(r.Count)})
}

// Anything other than a [avg, count] pair, null included, decodes to the zero
// rating so one odd entry doesn't sink the whole conference.
func (r *Rating) UnmarshalJSON(byts []byte) error {
	*r = Rating{}

	var tuple []float64
	if err := json.Unmarshal(byts, &tuple); err != nil || len(tuple) != 2 {
		return nil
	}

	r.Avg = tuple[0]
	r.Count = int(tuple[1])
	return nil
}

// Timestamp accepts RFC 3339 (with or without the colon in the offset), the
// plain "2006-01-02 15:04:05" layout and unix epochs.
//
// Values it can't make sense of decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Epochs past this are taken to be in milliseconds.
const maxEpochSeconds = 1e11

func (t *Timestamp) UnmarshalJSON(byts []byte) error {
	t.Time = time.Time{}

	raw := strings.Trim(string(byts), `"`)
	if raw == "" || raw == "null" {
		return nil
	}

	if epoch, err := strconv.ParseFloat(raw, 64); err == nil {
		if epoch > maxEpochSeconds {
			t.Time = time.UnixMilli(int64(epoch)).UTC()
		} else {
			t.Time = time.Unix(int64(epoch), 0).UTC()
		}
		return nil
	}

	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}

	slog.Debug("unrecognized timestamp", "value", raw)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Bookmarks is the set of session ids a user saved to their schedule.
type Bookmarks struct {
	ids map[string]struct{}
}

func NewBookmarks(ids ...string) Bookmarks {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Bookmarks{ids: set}
}

func (b Bookmarks) Has(id string) bool {
	_, ok := b.ids[id]
	return ok
}

func (b Bookmarks) Len() int {
	return len(b.ids)
}

// IDs returns the members sorted, so output is stable.
func (b Bookmarks) IDs() []string {
	ids := make([]string, 0, len(b.ids))
	for id := range b.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// With returns a copy including id.
func (b Bookmarks) With(id string) Bookmarks {
	return b.with(id, true)
}

// Without returns a copy excluding id.
func (b Bookmarks) Without(id string) Bookmarks {
	return b.with(id, false)
}

func (b Bookmarks) with(id string, present bool) Bookmarks {
	set := make(map[string]struct{}, len(b.ids)+1)
	for k := range b.ids {
		set[k] = struct{}{}
	}
	if present {
		set[id] = struct{}{}
	} else {
		delete(set, id)
	}
	return Bookmarks{ids: set}
}

func (b Bookmarks) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.IDs())
}
