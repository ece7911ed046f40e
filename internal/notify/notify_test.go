package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_LatestToastWins(t *testing.T) {
	b := NewBoard()
	ctx := context.Background()

	b.Notify(ctx, Info("Session bookmarked"))
	b.Notify(ctx, Error("Network error"))

	st := b.Status()
	require.NotNil(t, st.Toast)
	assert.Equal(t, "Network error", st.Toast.Message)
	assert.Equal(t, SeverityError, st.Toast.Severity)
	assert.False(t, st.Toast.At.IsZero())

	b.Dismiss()
	assert.Nil(t, b.Status().Toast)
}

func TestBoard_LoadingOverlaps(t *testing.T) {
	b := NewBoard()

	doneA := b.StartLoading()
	doneB := b.StartLoading()
	assert.True(t, b.Status().Loading)

	doneA()
	doneA() // Calling twice is harmless
	assert.True(t, b.Status().Loading)

	doneB()
	assert.False(t, b.Status().Loading)
}

func TestBoard_Subscribe(t *testing.T) {
	b := NewBoard()
	ch, stop := b.Subscribe(1)

	b.Notify(context.Background(), Info("hello"))
	got := <-ch
	assert.Equal(t, "hello", got.Message)

	stop()
	stop()
	_, open := <-ch
	assert.False(t, open)
}
