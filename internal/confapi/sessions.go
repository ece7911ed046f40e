package confapi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/jdholdren/confsync/internal/conference"
)

type (
	// RatingResult is a session's rating as the server reports it after a read or a vote.
	RatingResult struct {
		Avg    float64 `json:"avg"`
		Count  int     `json:"nr"`
		MyRate int     `json:"my_rate"` // 0 when the user hasn't voted
	}

	// Message is a question asked under a session.
	Message struct {
		ID        string               `json:"id"`
		Text      string               `json:"text"`
		Author    string               `json:"author"`
		Likes     int                  `json:"likes"`
		LikedByMe bool                 `json:"liked_by_me"`
		Mine      bool                 `json:"mine"`
		CreatedAt conference.Timestamp `json:"created"`
	}

	// MessageCount is the number of questions under a session and when to look again.
	MessageCount struct {
		Count     int
		NextCheck time.Duration
	}
)

func sessionPath(sessionID, suffix string) string {
	return "/conferences/sessions/" + url.PathEscape(sessionID) + suffix
}

// Bookmarks lists the session ids the current user bookmarked.
func (c *Client) Bookmarks(ctx context.Context, conferenceID string) ([]string, error) {
	ids := []string{}
	path := "/conferences/" + url.PathEscape(conferenceID) + "/bookmarks"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, authOptional, &ids); err != nil {
		return nil, err
	}

	return ids, nil
}

// ToggleBookmark flips a session's bookmark server side and reports the new state.
func (c *Client) ToggleBookmark(ctx context.Context, sessionID string) (bool, error) {
	var resp struct {
		Bookmarked bool `json:"bookmarked"`
	}
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/toggle-bookmark"), nil, struct{}{}, authOptional, &resp); err != nil {
		return false, err
	}

	return resp.Bookmarked, nil
}

// Rate votes on a session.
func (c *Client) Rate(ctx context.Context, sessionID string, rate int) (RatingResult, error) {
	body := struct {
		Rate int `json:"rate"`
	}{Rate: rate}

	var resp RatingResult
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/rate"), nil, body, authOptional, &resp); err != nil {
		return RatingResult{}, err
	}

	return resp, nil
}

// Rating reads a session's rating along with the user's own vote.
func (c *Client) Rating(ctx context.Context, sessionID string) (RatingResult, error) {
	var resp RatingResult
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/rate"), nil, nil, authOptional, &resp); err != nil {
		return RatingResult{}, err
	}

	return resp, nil
}

// Messages lists the questions under a session. Needs a logged in user.
func (c *Client) Messages(ctx context.Context, sessionID string) ([]Message, error) {
	msgs := []Message{}
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/messages"), nil, nil, authRequired, &msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// PostMessage asks a question under a session. Needs a logged in user.
func (c *Client) PostMessage(ctx context.Context, sessionID, text string) (Message, error) {
	body := struct {
		Text string `json:"text"`
	}{Text: text}

	var msg Message
	if err := c.do(ctx, http.MethodPost, sessionPath(sessionID, "/messages"), nil, body, authRequired, &msg); err != nil {
		return Message{}, err
	}

	return msg, nil
}

// CountMessages reports how many questions a session has.
func (c *Client) CountMessages(ctx context.Context, sessionID string) (MessageCount, error) {
	var resp struct {
		Count  int   `json:"count"`
		NextMS int64 `json:"miliseconds_till_next_check"` // sic
	}
	if err := c.do(ctx, http.MethodGet, sessionPath(sessionID, "/messages/count"), nil, nil, authOptional, &resp); err != nil {
		return MessageCount{}, err
	}

	return MessageCount{
		Count:     resp.Count,
		NextCheck: time.Duration(resp.NextMS) * time.Millisecond,
	}, nil
}

// ToggleMessageLike likes or unlikes a question.
func (c *Client) ToggleMessageLike(ctx context.Context, messageID string) error {
	path := "/messenger/messages/" + url.PathEscape(messageID) + "/like/toggle"
	return c.do(ctx, http.MethodPatch, path, nil, struct{}{}, authRequired, nil)
}

// DeleteMessage removes one of the user's own questions.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	path := "/messenger/messages/" + url.PathEscape(messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, authRequired, nil)
}
