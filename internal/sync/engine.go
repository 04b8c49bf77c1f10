package sync

import (
	"context"
	gosync "sync"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
)

// MessageHandler receives every message insert read from the feed.
type MessageHandler interface {
	HandleIncomingMessage(ctx context.Context, msg domain.Message)
}

// Engine reads the message-insert feed and hands each row to the handler.
// It does not look at the active chat; the handler decides what applies.
type Engine struct {
	stream  Stream
	handler MessageHandler
	logger  *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce gosync.Once
}

// NewEngine creates a new event reader over stream.
func NewEngine(stream Stream, h MessageHandler, logger *zap.Logger) *Engine {
	return &Engine{
		stream:  stream,
		handler: h,
		logger:  logging.OrNop(logger),
		done:    make(chan struct{}),
	}
}

// Start begins reading the stream in the background.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	go func() {
		defer close(e.done)
		events := e.stream.Events()
		for {
			select {
			case evt, ok := <-events:
				if !ok {
					e.logger.Info("message feed ended")
					return
				}
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop closes the stream and waits for the reader to exit. It is safe to
// call more than once; only the first call closes the stream.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
		if err := e.stream.Close(); err != nil {
			e.logger.Debug("close message feed", zap.Error(err))
		}
	})
	if e.cancel != nil {
		<-e.done
	}
}

// Done is closed once the reader has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

func (e *Engine) handleEvent(ctx context.Context, evt domain.ChangeEvent) {
	if evt.Table != domain.TableMessages || evt.Kind != domain.ChangeInsert {
		return
	}
	msg, err := evt.Message()
	if err != nil {
		e.logger.Warn("undecodable message event", zap.Error(err))
		return
	}
	e.handler.HandleIncomingMessage(ctx, *msg)
}
