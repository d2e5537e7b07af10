package workspace

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/domusnext/eval/internal/domain"
	"github.com/domusnext/eval/internal/feed"
)

func TestFeedURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://localhost:8080", "ws://localhost:8080/evaluations/versions/v1/feed"},
		{"https://eval.example.com/api/", "wss://eval.example.com/api/evaluations/versions/v1/feed"},
	}
	for _, tt := range tests {
		got, err := NewClient(tt.base).FeedURL("v1")
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestWatch(t *testing.T) {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := feed.NewHub(nil)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	e := echo.New()
	fs := feed.NewServer(hub, feed.Options{PingInterval: time.Second, WriteTimeout: time.Second}, nil)
	e.GET("/evaluations/versions/:versionId/feed", fs.HandleWebSocket)
	server := httptest.NewServer(e)
	defer func() {
		stopHub()
		<-hubDone
		server.Close()
	}()

	client := NewClient(server.URL)

	go func() {
		for deadline := time.Now().Add(2 * time.Second); !hub.HasSubscribers("v1") && time.Now().Before(deadline); {
			time.Sleep(10 * time.Millisecond)
		}
		hub.Publish("v1", domain.NewFeedEvent(domain.FeedEventRunQueued, "v1", "run-1"))
		hub.Publish("v1", domain.NewFeedEvent(domain.FeedEventRunCompleted, "v1", "run-1"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var seen []domain.FeedEventType
	err := client.Watch(ctx, "v1", func(ev domain.FeedEvent) error {
		seen = append(seen, ev.Type)
		if ev.Type == domain.FeedEventRunCompleted {
			return ErrStopWatching
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.FeedEventType{domain.FeedEventRunQueued, domain.FeedEventRunCompleted}, seen)
}

func TestWatch_ContextCancelled(t *testing.T) {
	hubCtx, stopHub := context.WithCancel(context.Background())
	hub := feed.NewHub(nil)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(hubCtx)
		close(hubDone)
	}()

	e := echo.New()
	fs := feed.NewServer(hub, feed.Options{}, nil)
	e.GET("/evaluations/versions/:versionId/feed", fs.HandleWebSocket)
	server := httptest.NewServer(e)
	defer func() {
		stopHub()
		<-hubDone
		server.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewClient(server.URL).Watch(ctx, "v1", func(domain.FeedEvent) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
