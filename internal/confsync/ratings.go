package confsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jdholdren/confsync/internal/confapi"
	"github.com/jdholdren/confsync/internal/conference"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/notify"
	"github.com/jdholdren/confsync/internal/store"
)

const msgRated = "Thank you for your feedback"

// RatingsAPI is what ratings need from the API client.
type RatingsAPI interface {
	Rate(ctx context.Context, sessionID string, rate int) (confapi.RatingResult, error)
	Rating(ctx context.Context, sessionID string) (confapi.RatingResult, error)
}

// Vote is a user's rating of a session, as checked before it's sent.
type Vote struct {
	SessionID string `validate:"required"`
	Rate      int    `validate:"min=1,max=5"`
}

// Ratings lets the user rate sessions and keeps the snapshot's averages current.
type Ratings struct {
	api      RatingsAPI
	store    *store.Store
	notifier notify.Notifier
	validate *validator.Validate
	cache    *lru.Cache[string, cachedRating]
}

// A rating read, tagged with the snapshot it was read against.
type cachedRating struct {
	res        confapi.RatingResult
	lastUpdate string
}

func NewRatings(api RatingsAPI, st *store.Store, notifier notify.Notifier) *Ratings {
	cache, _ := lru.New[string, cachedRating](256) // Only errors on a non-positive size

	return &Ratings{
		api:      api,
		store:    st,
		notifier: notifier,
		validate: validator.New(),
		cache:    cache,
	}
}

// Rate votes on a session. The new average lands on the stored snapshot.
func (r *Ratings) Rate(ctx context.Context, sessionID string, rate int) (confapi.RatingResult, error) {
	v := Vote{SessionID: sessionID, Rate: rate}
	if err := r.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Rate" {
			return confapi.RatingResult{}, cserrs.E(http.StatusUnprocessableEntity, "rate must be between 1 and 5")
		}
		return confapi.RatingResult{}, cserrs.E(http.StatusUnprocessableEntity, fmt.Errorf("invalid vote: %w", err))
	}

	res, err := r.api.Rate(ctx, v.SessionID, v.Rate)
	if err != nil {
		r.notifier.Notify(ctx, notify.Error(cserrs.UserMessage(err)))
		return confapi.RatingResult{}, fmt.Errorf("error rating session: %w", err)
	}

	r.remember(v.SessionID, res)
	r.notifier.Notify(ctx, notify.Info(msgRated))

	return res, nil
}

// Rating reads a session's rating along with the user's own vote.
//
// Answers are cached until the user votes on the session again or a newer
// snapshot lands in the store.
func (r *Ratings) Rating(ctx context.Context, sessionID string) (confapi.RatingResult, error) {
	if cached, ok := r.cache.Get(sessionID); ok && cached.lastUpdate == r.store.LastUpdate() {
		return cached.res, nil
	}

	res, err := r.api.Rating(ctx, sessionID)
	if err != nil {
		return confapi.RatingResult{}, fmt.Errorf("error fetching rating: %w", err)
	}

	r.remember(sessionID, res)
	return res, nil
}

func (r *Ratings) remember(sessionID string, res confapi.RatingResult) {
	r.cache.Add(sessionID, cachedRating{res: res, lastUpdate: r.store.LastUpdate()})
	r.store.PatchSnapshot(func(snap conference.Snapshot) conference.Snapshot {
		patched, _ := snap.WithRating(sessionID, conference.Rating{Avg: res.Avg, Count: res.Count})
		return patched
	})
}
