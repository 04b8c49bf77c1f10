package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/logging"
)

// Level is the severity of a notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-visible message. Err is the underlying cause, if any.
type Notification struct {
	Level   Level
	Message string
	Err     error
	At      time.Time
}

// Text renders the notification for display.
func (n Notification) Text() string {
	if n.Err != nil {
		return n.Message + ": " + n.Err.Error()
	}
	return n.Message
}

// DefaultTTL is how long a flash stays visible.
const DefaultTTL = 5 * time.Second

// Center surfaces notifications: it keeps the latest one as an expiring
// flash, logs it, and publishes it on the bus as notify.<level>.
type Center struct {
	bus *bus.Bus
	log *zap.Logger
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	latest  Notification
	expires time.Time
}

// NewCenter creates a notification center. A nil bus disables publishing.
func NewCenter(b *bus.Bus, log *zap.Logger) *Center {
	return &Center{
		bus: b,
		log: logging.OrNop(log),
		ttl: DefaultTTL,
		now: time.Now,
	}
}

// Info surfaces an informational message.
func (c *Center) Info(msg string) {
	c.push(Notification{Level: LevelInfo, Message: msg})
}

// Error surfaces a failed operation.
func (c *Center) Error(msg string, err error) {
	c.push(Notification{Level: LevelError, Message: msg, Err: err})
}

func (c *Center) push(n Notification) {
	n.At = c.now()
	c.mu.Lock()
	c.latest = n
	c.expires = n.At.Add(c.ttl)
	c.mu.Unlock()

	if n.Level == LevelError {
		c.log.Warn(n.Message, zap.Error(n.Err))
	} else {
		c.log.Info(n.Message)
	}
	c.bus.Publish(bus.Event{
		Kind:      bus.NamespaceNotify + string(n.Level),
		Timestamp: n.At,
		Payload:   n,
	})
}

// Flash returns the latest notification, or false once it has expired.
func (c *Center) Flash() (Notification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest.Message == "" || c.now().After(c.expires) {
		return Notification{}, false
	}
	return c.latest, true
}
