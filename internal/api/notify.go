package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Reconnect backoff bounds for the change feed.
const (
	notifyBaseBackoff = 2 * time.Second
	notifyMaxBackoff  = 5 * time.Minute
)

// Listener subscribes to the server's websocket change feed and delivers
// change notifications. Notifications are hints only - the engine reacts by
// running a normal incremental pull, so a dropped notification is recovered
// by the next poll.
type Listener struct {
	serverURL string
	token     TokenSource
	logger    *slog.Logger
}

// NewListener creates a change feed listener for the given server.
func NewListener(serverURL string, token TokenSource, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		serverURL: serverURL,
		token:     token,
		logger:    logger,
	}
}

// Listen connects to the workspace change feed and sends notifications on
// the given channel until ctx is canceled. Connection drops are retried with
// exponential backoff; Listen only returns on context cancellation. Sends
// never block - if the receiver is busy, the notification is dropped (the
// periodic poll covers the gap).
func (l *Listener) Listen(ctx context.Context, workspaceID string, notify chan<- Notification) error {
	wsURL := l.watchURL(workspaceID)
	backoff := notifyBaseBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := l.listenOnce(ctx, wsURL, notify)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			l.logger.Warn("change feed disconnected, reconnecting",
				slog.String("workspace", workspaceID),
				slog.Duration("backoff", backoff),
				slog.String("error", err.Error()),
			)
		}

		if sleepErr := timeSleep(ctx, backoff); sleepErr != nil {
			return sleepErr
		}

		backoff = min(backoff*2, notifyMaxBackoff)
	}
}

// listenOnce dials the feed and pumps notifications until the connection
// drops or ctx is canceled.
func (l *Listener) listenOnce(ctx context.Context, wsURL string, notify chan<- Notification) error {
	tok, err := l.token.Token(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + tok},
		},
	})
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	l.logger.Info("change feed connected")

	for {
		var n Notification
		if readErr := wsjson.Read(ctx, conn, &n); readErr != nil {
			return readErr
		}

		select {
		case notify <- n:
		default:
			l.logger.Debug("dropping change notification, receiver busy")
		}
	}
}

// watchURL converts the HTTP server base URL to the websocket feed URL.
func (l *Listener) watchURL(workspaceID string) string {
	base := l.serverURL

	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	return base + "/v1/" + workspaceID + "/watch"
}
