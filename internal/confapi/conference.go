package confapi

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tidwall/gjson"

	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
)

type (
	// FetchParams are the optional parts of a conference fetch.
	FetchParams struct {
		// Marker from the last snapshot; empty asks for everything.
		LastUpdate string
		UserID     string
	}

	// FetchResult is a decoded conference response.
	FetchResult struct {
		// Nil when the server had nothing new to send.
		Snapshot *conference.Snapshot
		// How long the server would like us to wait before asking again.
		NextTryIn time.Duration
	}
)

// Represents the payload of a conference fetch.
type conferenceResp struct {
	Conference *struct {
		DB struct {
			Sessions  map[string]conference.Session  `json:"sessions"`
			Rooms     map[string]conference.Room     `json:"rooms"`
			Lecturers map[string]conference.Lecturer `json:"lecturers"`
			Tracks    map[string]conference.Track    `json:"tracks"`
		} `json:"db"`
	} `json:"conference"`
	AvgRating struct {
		RatesBySession map[string]conference.Rating `json:"rates_by_session"`
	} `json:"conference_avg_rating"`
	NextTryInMS int64 `json:"next_try_in_ms"`
}

// ConferenceIDByAcronym resolves a conference acronym (e.g. sfscon-latest) to its id.
func (c *Client) ConferenceIDByAcronym(ctx context.Context, acronym string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	path := "/conferences/acronym/" + url.PathEscape(acronym)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, authOptional, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", cserrs.E(http.StatusNotFound, fmt.Sprintf("no conference for acronym %q", acronym))
	}

	return resp.ID, nil
}

// Conference fetches the conference, or only what changed since params.LastUpdate.
//
// Average ratings are merged onto the sessions before the snapshot is returned;
// sessions without one get a zero rating.
func (c *Client) Conference(ctx context.Context, conferenceID string, params FetchParams) (FetchResult, error) {
	q := url.Values{}
	q.Set("app_version", c.appVersion)
	q.Set("device", c.device)
	if params.UserID != "" {
		q.Set("id_user", params.UserID)
	}
	if params.LastUpdate != "" {
		q.Set("last_update", params.LastUpdate)
	}

	raw, err := c.doRaw(ctx, http.MethodGet, "/conferences/"+url.PathEscape(conferenceID), q, nil, authOptional)
	if err != nil {
		return FetchResult{}, err
	}

	return decodeConference(raw)
}

func decodeConference(raw []byte) (FetchResult, error) {
	var resp conferenceResp
	if err := json.Unmarshal(raw, &resp); err != nil {
		return FetchResult{}, cserrs.E(http.StatusBadGateway, cserrs.KindServer, fmt.Errorf("error decoding conference: %w", err))
	}

	res := FetchResult{
		NextTryIn: time.Duration(resp.NextTryInMS) * time.Millisecond,
	}
	if resp.Conference == nil {
		return res, nil
	}

	db := resp.Conference.DB
	snap := conference.Snapshot{
		Order:      sessionOrder(raw),
		Sessions:   make(map[string]conference.Session, len(db.Sessions)),
		Rooms:      make(map[string]conference.Room, len(db.Rooms)),
		Lecturers:  make(map[string]conference.Lecturer, len(db.Lecturers)),
		Tracks:     make(map[string]conference.Track, len(db.Tracks)),
		LastUpdate: gjson.GetBytes(raw, "conference.last_updated").String(),
	}

	for id, sess := range db.Sessions {
		sess.ID = id
		sess.Title = sanitize(sess.Title)
		sess.Rating = resp.AvgRating.RatesBySession[id] // Zero value when absent
		snap.Sessions[id] = sess
	}
	for id, room := range db.Rooms {
		room.ID = id
		room.Name = sanitize(room.Name)
		snap.Rooms[id] = room
	}
	for id, l := range db.Lecturers {
		l.ID = id
		l.DisplayName = sanitize(l.DisplayName)
		l.Organization = sanitize(l.Organization)
		snap.Lecturers[id] = l
	}
	for id, track := range db.Tracks {
		track.ID = id
		track.Name = sanitize(track.Name)
		snap.Tracks[id] = track
	}

	res.Snapshot = &snap
	return res, nil
}

// Go maps forget key order, so the session order is read straight off the document.
func sessionOrder(raw []byte) []string {
	var order []string
	gjson.GetBytes(raw, "conference.db.sessions").ForEach(func(key, _ gjson.Result) bool {
		order = append(order, key.String())
		return true
	})

	return order
}

var stripPolicy = bluemonday.StrictPolicy()

// Removes all html tags from a display string.
//
// The policy escapes what it keeps, which is for html output; these strings
// are plain text, so the entities are turned back.
func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return html.UnescapeString(stripPolicy.Sanitize(s))
}
