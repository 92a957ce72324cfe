package lib

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/fiffu/streamwatch/lib/models"
	"github.com/fiffu/streamwatch/lib/platforms"
	"github.com/fiffu/streamwatch/senders"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []senders.Message
	err  error
}

func (f *fakeSender) Validate(string) error { return nil }

func (f *fakeSender) Send(_ context.Context, _ string, msg senders.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) Sent() []senders.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]senders.Message(nil), f.sent...)
}

func fakeDestination(t *testing.T, f *fakeSender) senders.Destination {
	dest, err := senders.Registry{"fake": f}.Resolve("fake:room")
	require.NoError(t, err)
	return dest
}

type fakePlatform struct {
	channels map[string]*models.Channel
	uploads  map[string]*models.Upload
	live     map[string]*models.LiveStatus
	err      error

	mu    sync.Mutex
	calls int
}

func (f *fakePlatform) ResolveChannel(_ context.Context, input string) (*models.Channel, error) {
	if ch, ok := f.channels[input]; ok {
		return ch, nil
	}
	return nil, platforms.ErrChannelNotFound
}

func (f *fakePlatform) LatestUpload(_ context.Context, channelID string) (*models.Upload, error) {
	f.count()
	if f.err != nil {
		return nil, f.err
	}
	return f.uploads[channelID], nil
}

func (f *fakePlatform) LiveStatus(_ context.Context, login string) (*models.LiveStatus, error) {
	f.count()
	if f.err != nil {
		return nil, f.err
	}
	if status, ok := f.live[login]; ok {
		return status, nil
	}
	return &models.LiveStatus{}, nil
}

func (f *fakePlatform) count() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
}
