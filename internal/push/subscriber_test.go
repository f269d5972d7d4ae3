package push_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/push"
	"github.com/nhle/taskpulse/tests/testutil"
)

func TestStreamURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8787/v1/stream", push.StreamURL("http://127.0.0.1:8787/"))
	assert.Equal(t, "wss://api.example.com/v1/stream", push.StreamURL("https://api.example.com"))
}

func TestSubscribeReceivesInsertsAndUpdates(t *testing.T) {
	b := testutil.NewBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := push.NewSubscriber(push.StreamURL(b.HTTP.URL), b.Token, nil)
	stream, err := sub.Subscribe(ctx, testutil.TestUserID)
	require.NoError(t, err)
	defer stream.Close()
	b.WaitForSubscribers(t, testutil.TestUserID, 1)

	b.Publish(testutil.TestUserID, model.Notification{ID: "n-1", Kind: model.KindTask, Title: "New task"})
	msg, err := stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, push.Insert, msg.Type)
	assert.Equal(t, "n-1", msg.Notification.ID)
	assert.Equal(t, "New task", msg.Notification.Title)

	b.Touch(testutil.TestUserID, "n-1", func(n *model.Notification) { n.MarkRead(time.Now()) })
	msg, err = stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, push.Update, msg.Type)
	assert.True(t, msg.Notification.Read)
}

func TestSubscribeRejectsOtherUser(t *testing.T) {
	b := testutil.NewBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := push.NewSubscriber(push.StreamURL(b.HTTP.URL), b.Token, nil).Subscribe(ctx, "user-2")
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	record := `{"id":"a","type":"update","created_at":"2026-01-02T03:04:05Z","popped_at":null}`

	msg, err := push.Decode([]byte(`{"type":"UPDATE","record":` + record + `}`))
	require.NoError(t, err)
	assert.Equal(t, push.Update, msg.Type)
	assert.Equal(t, "a", msg.Notification.ID)

	_, err = push.Decode([]byte(`{"type":"DELETE","record":` + record + `}`))
	assert.ErrorIs(t, err, push.ErrInvalidPayload)

	_, err = push.Decode([]byte(`{"type":"INSERT","record":{"id":"a"}}`))
	assert.ErrorIs(t, err, push.ErrInvalidPayload)

	_, err = push.Decode([]byte(`{"type":"INSERT","record":{"id":"a","type":"promo","created_at":"2026-01-02T03:04:05Z"}}`))
	assert.ErrorIs(t, err, model.ErrUnknownKind)
	assert.True(t, push.IsFrameError(err))
}
