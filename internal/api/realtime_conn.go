package api

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var errConnClosed = errors.New("connection closed")

// connection wraps a websocket and coordinates outbound writes via a buffered channel.
type connection struct {
	id     string
	userID string

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
}

func newConnection(userID string, ws *websocket.Conn) *connection {
	return &connection{
		id:     uuid.NewString(),
		userID: userID,
		ws:     ws,
		send:   make(chan []byte, 128),
		close:  make(chan struct{}),
	}
}

// start launches the write loop and the read loop that detects disconnects.
func (c *connection) start() {
	go c.writeLoop()
	go c.readLoop()
}

// enqueue queues payload for delivery. A slow client whose buffer is full is disconnected.
func (c *connection) enqueue(payload []byte) error {
	select {
	case <-c.close:
		return errConnClosed
	default:
	}
	select {
	case <-c.close:
		return errConnClosed
	case c.send <- payload:
		return nil
	default:
		c.shutdown(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// done is closed once the connection is shut down.
func (c *connection) done() <-chan struct{} {
	return c.close
}

func (c *connection) shutdown(code int, reason string) {
	c.once.Do(func() {
		close(c.close)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *connection) readLoop() {
	defer c.shutdown(websocket.CloseNormalClosure, "")
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.shutdown(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *connection) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
