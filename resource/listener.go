package resource

import (
	"context"

	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/log"
)

// Listener reloads a MetadataSource whenever a resource change is committed.
type Listener struct {
	source *MetadataSource
	logger log.Logger
}

func NewListener(source *MetadataSource, logger log.Logger) *Listener {
	if logger == nil {
		logger = log.Nop()
	}

	return &Listener{source: source, logger: logger}
}

// Attach subscribes the listener and returns the unsubscribe func.
func (l *Listener) Attach(sub domain.EventSubscriber) func() {
	return sub.Subscribe(l.Handle)
}

// Handle reloads the source. A failed reload keeps the previous snapshot.
func (l *Listener) Handle(ctx context.Context, evt domain.ResourceChanged) {
	if err := l.source.Reload(ctx); err != nil {
		l.logger.Error(ctx, "secured resource reload failed", err, log.Fields{
			"resource_id": evt.ResourceID,
			"op":          evt.Op,
		})
	}
}
