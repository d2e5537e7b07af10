package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/domusnext/eval/internal/domain"
)

// ErrStopWatching ends Watch without an error when returned by the handler.
var ErrStopWatching = errors.New("stop watching")

// FeedURL returns the websocket URL of a version's run feed.
func (c *Client) FeedURL(versionID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/evaluations/versions/" + url.PathEscape(versionID) + "/feed"
	return u.String(), nil
}

// Watch subscribes to a version's run feed and calls fn for every event
// until fn fails, the server closes the feed, or ctx is done.
func (c *Client) Watch(ctx context.Context, versionID string, fn func(domain.FeedEvent) error) error {
	addr, err := c.FeedURL(versionID)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read feed: %w", err)
		}

		var event domain.FeedEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if err := fn(event); err != nil {
			if errors.Is(err, ErrStopWatching) {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			return err
		}
	}
}
