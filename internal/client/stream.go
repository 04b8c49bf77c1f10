package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/domain"
)

// Stream is a live feed of row changes for one table.
type Stream struct {
	conn   *websocket.Conn
	events chan domain.ChangeEvent
	done   chan struct{}
	log    *zap.Logger

	once sync.Once
	mu   sync.Mutex
	err  error
}

// Subscribe opens the realtime feed for table, limited to the given change
// kinds (all kinds when none are given).
func (c *Client) Subscribe(ctx context.Context, table string, kinds ...string) (*Stream, error) {
	q := url.Values{}
	q.Set("table", table)
	if len(kinds) > 0 {
		q.Set("events", strings.Join(kinds, ","))
	}
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = c.base.Path + "/realtime"
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			defer func() { _ = resp.Body.Close() }()
			return nil, decodeError(resp)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	s := &Stream{
		conn:   conn,
		events: make(chan domain.ChangeEvent, 64),
		done:   make(chan struct{}),
		log:    c.log,
	}
	go s.read()
	c.log.Debug("realtime subscribed", zap.String("table", table))
	return s, nil
}

// Events returns the change feed. The channel is closed when the stream ends.
func (s *Stream) Events() <-chan domain.ChangeEvent {
	return s.events
}

// Err returns the error that ended the stream, or nil after a local Close.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream. Safe to call more than once.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		err = s.conn.Close()
	})
	return err
}

func (s *Stream) read() {
	defer close(s.events)
	for {
		var evt domain.ChangeEvent
		if err := s.conn.ReadJSON(&evt); err != nil {
			if !isClosed(err) {
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				s.log.Warn("realtime stream ended", zap.Error(err))
			}
			_ = s.Close()
			return
		}
		select {
		case s.events <- evt:
		case <-s.done:
			return
		}
	}
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
		errors.Is(err, net.ErrClosed)
}
