package confsync

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goaway "github.com/TwiN/go-away"

	"github.com/jdholdren/confsync/internal/confapi"
	cserrs "github.com/jdholdren/confsync/internal/errors"
	"github.com/jdholdren/confsync/internal/notify"
)

const (
	msgDeleted      = "Message succesfully deleted"
	msgDeleteFailed = "Error deleting message"

	maxQuestionLength = 1024
)

// QuestionsAPI is what questions need from the API client.
type QuestionsAPI interface {
	Messages(ctx context.Context, sessionID string) ([]confapi.Message, error)
	PostMessage(ctx context.Context, sessionID, text string) (confapi.Message, error)
	CountMessages(ctx context.Context, sessionID string) (confapi.MessageCount, error)
	ToggleMessageLike(ctx context.Context, messageID string) error
	DeleteMessage(ctx context.Context, messageID string) error
}

// Questions are the Q&A threads under sessions.
type Questions struct {
	api      QuestionsAPI
	notifier notify.Notifier
}

func NewQuestions(api QuestionsAPI, notifier notify.Notifier) *Questions {
	return &Questions{api: api, notifier: notifier}
}

// List returns the questions under a session.
func (q *Questions) List(ctx context.Context, sessionID string) ([]confapi.Message, error) {
	msgs, err := q.api.Messages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("error listing questions: %w", err)
	}

	return msgs, nil
}

// Ask posts a question after a length and profanity check.
func (q *Questions) Ask(ctx context.Context, sessionID, text string) (confapi.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return confapi.Message{}, cserrs.E(http.StatusUnprocessableEntity, "question is empty")
	}
	if len(text) > maxQuestionLength {
		return confapi.Message{}, cserrs.E(http.StatusUnprocessableEntity, "question too long")
	}
	if goaway.IsProfane(text) {
		return confapi.Message{}, cserrs.E(http.StatusUnprocessableEntity, "profanity detected in question")
	}

	msg, err := q.api.PostMessage(ctx, sessionID, text)
	if err != nil {
		q.notifier.Notify(ctx, notify.Error(cserrs.UserMessage(err)))
		return confapi.Message{}, fmt.Errorf("error posting question: %w", err)
	}

	return msg, nil
}

// Count reports how many questions a session has, and when to ask again.
func (q *Questions) Count(ctx context.Context, sessionID string) (confapi.MessageCount, error) {
	count, err := q.api.CountMessages(ctx, sessionID)
	if err != nil {
		return confapi.MessageCount{}, fmt.Errorf("error counting questions: %w", err)
	}

	return count, nil
}

func (q *Questions) ToggleLike(ctx context.Context, messageID string) error {
	if err := q.api.ToggleMessageLike(ctx, messageID); err != nil {
		q.notifier.Notify(ctx, notify.Error(cserrs.UserMessage(err)))
		return fmt.Errorf("error liking question: %w", err)
	}

	return nil
}

// Delete removes one of the user's own questions.
func (q *Questions) Delete(ctx context.Context, messageID string) error {
	if err := q.api.DeleteMessage(ctx, messageID); err != nil {
		q.notifier.Notify(ctx, notify.Error(msgDeleteFailed))
		return fmt.Errorf("error deleting question: %w", err)
	}

	q.notifier.Notify(ctx, notify.Info(msgDeleted))
	return nil
}
