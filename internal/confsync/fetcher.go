// Package confsync ties the API client, the store and the notification board
// together into the operations the app performs: loading and refreshing the
// conference, rating sessions and working with session questions.
package confsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jdholdren/confsync/internal/confapi"
	cserrs "github.com/jdholdren/confsync/internal/errors"
)

// Key the resolved conference id is kept under on the device.
const conferenceIDKey = "conferenceId"

type (
	// ConferenceAPI is what the fetcher needs from the API client.
	ConferenceAPI interface {
		ConferenceIDByAcronym(ctx context.Context, acronym string) (string, error)
		Conference(ctx context.Context, conferenceID string, params confapi.FetchParams) (confapi.FetchResult, error)
	}

	// Secrets is the on-device store for the conference id.
	Secrets interface {
		Get(ctx context.Context, key string) (string, error)
		Set(ctx context.Context, key, value string) error
		Delete(ctx context.Context, key string) error
	}

	FetcherConfig struct {
		Acronym string
		UserID  string
	}
)

// Fetcher gets the conference from the API, resolving which one first.
type Fetcher struct {
	api     ConferenceAPI
	secrets Secrets
	cfg     FetcherConfig

	mu     sync.Mutex
	confID string
}

func NewFetcher(api ConferenceAPI, secrets Secrets, cfg FetcherConfig) *Fetcher {
	return &Fetcher{
		api:     api,
		secrets: secrets,
		cfg:     cfg,
	}
}

// ConferenceID resolves the configured acronym once and remembers it.
//
// A successful lookup is also written to the device. When the lookup fails the
// id written by an earlier run is used, without being remembered, so the next
// call tries the lookup again.
func (f *Fetcher) ConferenceID(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.confID != "" {
		return f.confID, nil
	}

	id, err := f.api.ConferenceIDByAcronym(ctx, f.cfg.Acronym)
	if err != nil {
		stored, serr := f.secrets.Get(ctx, conferenceIDKey)
		if serr != nil || stored == "" {
			return "", fmt.Errorf("error resolving conference %q: %w", f.cfg.Acronym, err)
		}

		slog.WarnContext(ctx, "using stored conference id", "acronym", f.cfg.Acronym, "error", err)
		return stored, nil
	}

	if err := f.secrets.Set(ctx, conferenceIDKey, id); err != nil {
		slog.WarnContext(ctx, "error storing conference id", "error", err)
	}
	f.confID = id

	return id, nil
}

// Forget drops the resolved conference id, from memory and from the device, so
// the next call resolves the acronym from scratch.
func (f *Fetcher) Forget(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.confID = ""
	if err := f.secrets.Delete(ctx, conferenceIDKey); err != nil {
		return fmt.Errorf("error forgetting conference id: %w", err)
	}

	return nil
}

// Fetch gets the conference, or only what changed since lastUpdate.
//
// Every error it returns matches [cserrs.ErrFetchFailed].
func (f *Fetcher) Fetch(ctx context.Context, lastUpdate string) (confapi.FetchResult, error) {
	id, err := f.ConferenceID(ctx)
	if err != nil {
		return confapi.FetchResult{}, fmt.Errorf("%w: %w", cserrs.ErrFetchFailed, err)
	}

	res, err := f.api.Conference(ctx, id, confapi.FetchParams{
		LastUpdate: lastUpdate,
		UserID:     f.cfg.UserID,
	})
	if err != nil {
		return confapi.FetchResult{}, fmt.Errorf("%w: %w", cserrs.ErrFetchFailed, err)
	}

	return res, nil
}
