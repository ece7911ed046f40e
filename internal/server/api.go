// Package server is the local HTTP surface the rendering layer talks to.
//
// It reads from the store and turns user intents (bookmark, rate, refresh) into
// calls on the sync components.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/jdholdren/confsync/internal/bookmarks"
	"github.com/jdholdren/confsync/internal/confapi"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/projection"
	"github.com/jdholdren/confsync/internal/store"
)

type (
	Bookmarker interface {
		Toggle(ctx context.Context, sessionID string) (bookmarks.Result, error)
	}

	Rater interface {
		Rate(ctx context.Context, sessionID string, rate int) (confapi.RatingResult, error)
		Rating(ctx context.Context, sessionID string) (confapi.RatingResult, error)
	}

	QuestionLister interface {
		List(ctx context.Context, sessionID string) ([]confapi.Message, error)
	}

	Reloader interface {
		Reload(ctx context.Context) error
		Reset(ctx context.Context) error
		NextRefresh() (time.Time, bool)
	}

	StatusBoard interface {
		Status() notify.Status
		Dismiss()
		Subscribe(buffer int) (<-chan notify.Notification, func())
	}
)

type (
	// Server answers the rendering layer.
	Server struct {
		*http.Server

		store     *store.Store
		bookmarks Bookmarker
		ratings   Rater
		questions QuestionLister
		syncer    Reloader
		board     StatusBoard
	}

	Config struct {
		Port       int
		CorsOrigin string
	}

	Deps struct {
		Store     *store.Store
		Bookmarks Bookmarker
		Ratings   Rater
		Questions QuestionLister
		Syncer    Reloader
		Board     StatusBoard
	}
)

func NewServer(config Config, deps Deps) *Server {
	r := ErrRouter{Router: mux.NewRouter()}

	srvr := Server{
		store:     deps.Store,
		bookmarks: deps.Bookmarks,
		ratings:   deps.Ratings,
		questions: deps.Questions,
		syncer:    deps.Syncer,
		board:     deps.Board,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 35 * time.Second, // A reload can take as long as a fetch
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type"}),
			)(r),
		},
	}

	r.Use(AccessLogMiddleware) // Log everything
	r.HandleFuncE("/api/my-schedule", srvr.getMySchedule).Methods(http.MethodGet)
	r.HandleFuncE("/api/sessions/{sessionID}/bookmark", srvr.postBookmark).Methods(http.MethodPost)
	r.HandleFuncE("/api/sessions/{sessionID}/rating", srvr.postRating).Methods(http.MethodPost)
	r.HandleFuncE("/api/sessions/{sessionID}/rating", srvr.getRating).Methods(http.MethodGet)
	r.HandleFuncE("/api/sessions/{sessionID}/questions", srvr.getQuestions).Methods(http.MethodGet)
	r.HandleFuncE("/api/status", srvr.getStatus).Methods(http.MethodGet)
	r.HandleFuncE("/api/status/toast", srvr.deleteToast).Methods(http.MethodDelete)
	r.HandleFuncE("/api/notifications", srvr.getNotifications).Methods(http.MethodGet)
	r.HandleFuncE("/api/refresh", srvr.postRefresh).Methods(http.MethodPost)
	r.HandleFuncE("/api/conference/reset", srvr.postReset).Methods(http.MethodPost)

	slog.Debug("configured local server", "port", config.Port)

	return &srvr
}

type myScheduleResp struct {
	Sessions []projection.DisplaySession `json:"sessions"`
}

// Supports ?day=2006-01-02 and any number of ?track= ids.
func (s Server) getMySchedule(w http.ResponseWriter, r *http.Request) error {
	var filter projection.Filter
	q := r.URL.Query()
	if day := q.Get("day"); day != "" {
		parsed, err := time.Parse(time.DateOnly, day)
		if err != nil {
			return cserrs.E(http.StatusBadRequest, "day must look like 2006-01-02")
		}
		filter.Day = parsed
	}
	filter.TrackIDs = q["track"]

	snap, bms := s.store.View()
	sessions := filter.Apply(projection.MySchedule(snap, bms))

	return WriteJSON(w, http.StatusOK, myScheduleResp{Sessions: sessions})
}

type bookmarkResp struct {
	SessionID  string `json:"session_id"`
	Bookmarked bool   `json:"bookmarked"`
	Superseded bool   `json:"superseded,omitempty"`
}

func (s Server) postBookmark(w http.ResponseWriter, r *http.Request) error {
	sessionID := mux.Vars(r)["sessionID"]
	if _, ok := s.store.Snapshot().Session(sessionID); !ok {
		return cserrs.E(http.StatusNotFound, "no such session")
	}

	res, err := s.bookmarks.Toggle(r.Context(), sessionID)
	if err != nil {
		return err
	}

	return WriteJSON(w, http.StatusOK, bookmarkResp{
		SessionID:  res.SessionID,
		Bookmarked: res.Bookmarked,
		Superseded: res.Superseded,
	})
}

type rateReq struct {
	Rate int `json:"rate"`
}

func (req rateReq) Validate() error {
	if req.Rate < 1 || req.Rate > 5 {
		return cserrs.E(http.StatusUnprocessableEntity, "rate must be between 1 and 5")
	}
	return nil
}

func (s Server) postRating(w http.ResponseWriter, r *http.Request) error {
	req, err := DecodeValid[rateReq](w, r)
	if err != nil {
		return err
	}

	res, err := s.ratings.Rate(r.Context(), mux.Vars(r)["sessionID"], req.Rate)
	if err != nil {
		return err
	}

	return WriteJSON(w, http.StatusOK, res)
}

func (s Server) getRating(w http.ResponseWriter, r *http.Request) error {
	res, err := s.ratings.Rating(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		return err
	}

	return WriteJSON(w, http.StatusOK, res)
}

func (s Server) getQuestions(w http.ResponseWriter, r *http.Request) error {
	msgs, err := s.questions.List(r.Context(), mux.Vars(r)["sessionID"])
	if err != nil {
		return err
	}

	return WriteJSON(w, http.StatusOK, msgs)
}

type statusResp struct {
	notify.Status
	NextRefresh *time.Time `json:"next_refresh,omitempty"`
	LastUpdate  string     `json:"last_update,omitempty"`
}

func (s Server) getStatus(w http.ResponseWriter, r *http.Request) error {
	resp := statusResp{
		Status:     s.board.Status(),
		LastUpdate: s.store.LastUpdate(),
	}
	if due, ok := s.syncer.NextRefresh(); ok {
		resp.NextRefresh = &due
	}

	return WriteJSON(w, http.StatusOK, resp)
}

func (s Server) deleteToast(w http.ResponseWriter, r *http.Request) error {
	s.board.Dismiss()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// Pull to refresh.
func (s Server) postRefresh(w http.ResponseWriter, r *http.Request) error {
	if err := s.syncer.Reload(r.Context()); err != nil {
		return err
	}

	return s.getStatus(w, r)
}

// Drops the stored conference and resolves the acronym again.
func (s Server) postReset(w http.ResponseWriter, r *http.Request) error {
	if err := s.syncer.Reset(r.Context()); err != nil {
		return err
	}

	return s.getStatus(w, r)
}

// Streams every notification as a server-sent event until the client leaves.
func (s Server) getNotifications(w http.ResponseWriter, r *http.Request) error {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("error lifting write deadline: %w", err)
	}

	notes, stop := s.board.Subscribe(16)
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		slog.WarnContext(r.Context(), "notification stream can't flush", "error", err)
		return nil
	}

	for {
		select {
		case <-r.Context().Done():
			return nil
		case n, ok := <-notes:
			if !ok {
				return nil
			}
			byts, err := json.Marshal(n)
			if err != nil {
				return fmt.Errorf("error encoding notification: %w", err)
			}
			if _, err := fmt.Fprintf(w, "event: notification\ndata: %s\n\n", byts); err != nil {
				return nil // Client went away
			}
			if err := rc.Flush(); err != nil {
				return nil
			}
		}
	}
}
