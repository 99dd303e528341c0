package app

import (
	"context"

	"github.com/alanyoungcy/updownbot/internal/domain"
	"github.com/alanyoungcy/updownbot/internal/strategy"
)

// multiRecorder fans position lifecycle events out to every enabled sink.
type multiRecorder []strategy.Recorder

func (m multiRecorder) RecordOpen(ctx context.Context, p domain.Position) {
	for _, r := range m {
		r.RecordOpen(ctx, p)
	}
}

func (m multiRecorder) RecordClose(ctx context.Context, p domain.Position) {
	for _, r := range m {
		r.RecordClose(ctx, p)
	}
}
