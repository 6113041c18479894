package trace

import (
	"context"
	"log/slog"
)

// LogObserver writes one debug line per event.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = slog.Default()
	}
	return &LogObserver{logger: l}
}

func (o *LogObserver) Observe(e Event) {
	if !o.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	o.logger.Debug("packet traced",
		"sink", e.Sink,
		"time", e.Time.Seconds(),
		"bytes", e.Size(),
		"from", e.From.String())
}
