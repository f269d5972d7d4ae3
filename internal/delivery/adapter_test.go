package delivery_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/taskpulse/internal/delivery"
	"github.com/nhle/taskpulse/internal/model"
	"github.com/nhle/taskpulse/internal/push"
	"github.com/nhle/taskpulse/internal/remote"
	"github.com/nhle/taskpulse/tests/testutil"
)

// nextOf reads events until one of kind arrives.
func nextOf(t *testing.T, events <-chan delivery.Event, kind delivery.EventKind) delivery.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "events closed while waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

// firstOf reads events until one of each kind has arrived, in any order,
// returning the first event of every kind.
func firstOf(t *testing.T, events <-chan delivery.Event, kinds ...delivery.EventKind) map[delivery.EventKind]delivery.Event {
	t.Helper()
	want := make(map[delivery.EventKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	got := make(map[delivery.EventKind]delivery.Event, len(kinds))
	timeout := time.After(5 * time.Second)
	for len(got) < len(want) {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "events closed early")
			if _, seen := got[ev.Kind]; want[ev.Kind] && !seen {
				got[ev.Kind] = ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", kinds)
		}
	}
	return got
}

func TestAdapterAgainstBackend(t *testing.T) {
	b := testutil.NewBackend(t)
	b.Publish(testutil.TestUserID, model.Notification{ID: "n-1", Kind: model.KindUpdate})
	b.PutTask(testutil.TestUserID, model.Task{ID: "t-1", Title: "Ship", Status: model.StatusInProgress})

	client := remote.NewClient(b.HTTP.URL, b.Token, remote.Options{})
	selfPopped := map[string]bool{"n-4": true}
	a := delivery.New(delivery.Options{
		Notifications: client,
		Tasks:         client,
		Subscribe:     delivery.PushSubscribe(push.NewSubscriber(push.StreamURL(b.HTTP.URL), b.Token, nil)),
		UserID:        testutil.TestUserID,
		SelfPopped:    func(id string) bool { return selfPopped[id] },
		PollInterval:  time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	ev := <-a.Events()
	require.Equal(t, delivery.EventCandidate, ev.Kind, "catch-up runs first")
	assert.Equal(t, "n-1", ev.Notification.ID)

	first := firstOf(t, a.Events(), delivery.EventSnapshot, delivery.EventChannelState)
	require.NoError(t, first[delivery.EventSnapshot].Err)
	assert.Len(t, first[delivery.EventSnapshot].Tasks, 1)
	assert.True(t, first[delivery.EventChannelState].Live)
	assert.True(t, a.Live())
	b.WaitForSubscribers(t, testutil.TestUserID, 1)

	b.Publish(testutil.TestUserID, model.Notification{ID: "n-2", Kind: model.KindTask})
	ev = nextOf(t, a.Events(), delivery.EventCandidate)
	assert.Equal(t, "n-2", ev.Notification.ID)

	// Popped by this session: an echo, not a retraction. Read always
	// retracts.
	b.Publish(testutil.TestUserID, model.Notification{ID: "n-4", Kind: model.KindTask})
	nextOf(t, a.Events(), delivery.EventCandidate)
	b.Touch(testutil.TestUserID, "n-4", func(n *model.Notification) { n.MarkPopped(time.Now()) })
	b.Touch(testutil.TestUserID, "n-2", func(n *model.Notification) { n.MarkRead(time.Now()) })
	ev = nextOf(t, a.Events(), delivery.EventRetract)
	assert.Equal(t, "n-2", ev.Notification.ID)

	b.Touch(testutil.TestUserID, "n-1", func(n *model.Notification) { n.MarkPopped(time.Now()) })
	ev = nextOf(t, a.Events(), delivery.EventRetract)
	assert.Equal(t, "n-1", ev.Notification.ID)

	b.PutTask(testutil.TestUserID, model.Task{ID: "t-2", Title: "Review", Status: model.StatusNotStarted})
	a.Refresh()
	snap := nextOf(t, a.Events(), delivery.EventSnapshot)
	assert.Len(t, snap.Tasks, 2)
}

type fakeAPI struct {
	pending []model.Notification
	err     error
}

func (f *fakeAPI) FetchPending(context.Context) ([]model.Notification, error) {
	return f.pending, f.err
}

type fakeTasks struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTasks) FetchTasks(context.Context) ([]model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return nil, errors.New("backend down")
	}
	return []model.Task{{ID: fmt.Sprintf("t-%d", f.calls)}}, nil
}

func TestAdapterDegradesWithoutPush(t *testing.T) {
	a := delivery.New(delivery.Options{
		Notifications: &fakeAPI{err: errors.New("catch-up failed")},
		Tasks:         &fakeTasks{},
		Subscribe: func(context.Context, string) (delivery.Stream, error) {
			return nil, errors.New("dial refused")
		},
		PollInterval:   time.Hour,
		ReconnectDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	first := firstOf(t, a.Events(), delivery.EventSnapshot, delivery.EventChannelState)
	assert.False(t, first[delivery.EventChannelState].Live)
	assert.Error(t, first[delivery.EventSnapshot].Err)
	assert.False(t, a.Live())

	a.Refresh()
	snap := nextOf(t, a.Events(), delivery.EventSnapshot)
	require.NoError(t, snap.Err)
	assert.Equal(t, "t-2", snap.Tasks[0].ID)

	cancel()
	for range a.Events() {
	}
}

type scriptedStream struct {
	frames []func() (push.Message, error)
}

func (s *scriptedStream) Next(ctx context.Context) (push.Message, error) {
	if len(s.frames) == 0 {
		<-ctx.Done()
		return push.Message{}, ctx.Err()
	}
	next := s.frames[0]
	s.frames = s.frames[1:]
	return next()
}

func (s *scriptedStream) Close() error { return nil }

func TestAdapterSkipsBadFrames(t *testing.T) {
	now := time.Now()
	stream := &scriptedStream{frames: []func() (push.Message, error){
		func() (push.Message, error) { return push.Message{}, fmt.Errorf("%w: junk", push.ErrInvalidPayload) },
		func() (push.Message, error) { return push.Message{}, fmt.Errorf("%w: promo", model.ErrUnknownKind) },
		func() (push.Message, error) {
			// Already read on insert: never a candidate.
			return push.Message{Type: push.Insert, Notification: model.Notification{ID: "old", Read: true}}, nil
		},
		func() (push.Message, error) {
			return push.Message{Type: push.Insert, Notification: model.Notification{ID: "elsewhere", PoppedAt: &now}}, nil
		},
		func() (push.Message, error) {
			return push.Message{Type: push.Insert, Notification: model.Notification{ID: "ok", Kind: model.KindUpdate}}, nil
		},
	}}

	a := delivery.New(delivery.Options{
		Subscribe: func(context.Context, string) (delivery.Stream, error) { return stream, nil },
	})
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	ev := nextOf(t, a.Events(), delivery.EventCandidate)
	assert.Equal(t, "ok", ev.Notification.ID)

	cancel()
	for range a.Events() {
	}
}

func TestAdapterRefreshesOnPlainUpdates(t *testing.T) {
	now := time.Now()
	stream := &scriptedStream{frames: []func() (push.Message, error){
		func() (push.Message, error) {
			return push.Message{Type: push.Update, Notification: model.Notification{ID: "mine", Title: "Renamed", PoppedAt: &now}}, nil
		},
		func() (push.Message, error) {
			return push.Message{Type: push.Update, Notification: model.Notification{ID: "theirs", PoppedAt: &now}}, nil
		},
	}}

	a := delivery.New(delivery.Options{
		Subscribe:  func(context.Context, string) (delivery.Stream, error) { return stream, nil },
		SelfPopped: func(id string) bool { return id == "mine" },
	})
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	ev := nextOf(t, a.Events(), delivery.EventRefresh)
	assert.Equal(t, "mine", ev.Notification.ID)
	assert.Equal(t, "Renamed", ev.Notification.Title)
	ev = nextOf(t, a.Events(), delivery.EventRetract)
	assert.Equal(t, "theirs", ev.Notification.ID)
	assert.Equal(t, "refresh", delivery.EventRefresh.String())

	cancel()
	for range a.Events() {
	}
}
