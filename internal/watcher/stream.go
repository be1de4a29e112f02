package watcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	appErr "shodh/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const closeWriteTimeout = time.Second

// PushClient feeds push channel messages into a Watcher.
type PushClient struct {
	conn      *websocket.Conn
	watcher   *Watcher
	open      atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// DialPush connects to the push endpoint and starts delivering messages to w.
// The client is attached to w, so w.Close also closes it.
func DialPush(ctx context.Context, url string, header http.Header, w *Watcher) (*PushClient, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.BackendUnavailable, "dial push channel %s failed", url)
	}

	client := &PushClient{
		conn:    conn,
		watcher: w,
		done:    make(chan struct{}),
	}
	client.open.Store(true)
	go client.readLoop()
	w.AttachPush(client)
	return client, nil
}

func (c *PushClient) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			wasOpen := c.open.Swap(false)
			if wasOpen && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!errors.Is(err, net.ErrClosed) {
				c.watcher.report(c.watcher.root, "push channel read failed", err)
			}
			return
		}
		c.watcher.HandlePush(data)
	}
}

// Done is closed once the read loop exits.
func (c *PushClient) Done() <-chan struct{} { return c.done }

// Close sends a close frame when the connection is still open, then releases it.
// Calling Close more than once is safe.
func (c *PushClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.open.Swap(false) {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); werr != nil {
				c.watcher.report(c.watcher.root, "push channel close frame failed", werr, zap.String("remote", c.conn.RemoteAddr().String()))
			}
		}
		err = c.conn.Close()
		<-c.done
	})
	return err
}
