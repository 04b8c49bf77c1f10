package api

import (
	"time"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/bus"
	"github.com/kashyapanjali/periskope/internal/domain"
)

// publishRow announces a committed row change on the bus.
func publishRow(b *bus.Bus, log *zap.Logger, change, table string, row any) {
	evt, err := domain.NewChangeEvent(change, table, row, time.Now().UTC())
	if err != nil {
		log.Warn("encode change event", zap.String("table", table), zap.Error(err))
		return
	}
	b.Publish(bus.Event{
		Kind:      bus.RowKind(table, change),
		Timestamp: evt.CommitTimestamp,
		Payload:   evt,
	})
}
