// Package router classifies inbound push frames and dispatches them to the
// notification store and the presentation gate.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/pushline/internal/model"
	"github.com/nhle/pushline/internal/protocol"
)

// Store receives every decoded notification.
type Store interface {
	Insert(ctx context.Context, n model.Notification) (added, duplicate bool)
}

// Presenter surfaces newly stored notifications to the user.
type Presenter interface {
	PresentPassive(n model.Notification)
	PresentUrgent(n model.Notification)
}

// idNamespace scopes the name-based ids assigned to notifications that
// arrive without one.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("pushline:notification"))

// Router dispatches decoded frames. It never returns decode or dispatch
// failures to its caller; they are logged and the frame is dropped.
type Router struct {
	store     Store
	presenter Presenter
	log       *zap.Logger
	now       func() time.Time
}

// New creates a router. presenter may be nil, in which case notifications
// are stored silently.
func New(s Store, p Presenter, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{store: s, presenter: p, log: log, now: time.Now}
}

// HandleFrame decodes raw and dispatches it, returning the frame kind so the
// connection manager can observe heartbeat acknowledgments.
func (r *Router) HandleFrame(ctx context.Context, raw []byte) protocol.Kind {
	frame, err := protocol.Decode(raw, r.now())
	if err != nil {
		r.log.Warn("discarding unparseable frame",
			zap.Error(err),
			zap.Int("bytes", len(raw)),
			zap.ByteString("frame", truncate(raw)),
		)
		return protocol.KindInvalid
	}

	switch f := frame.(type) {
	case protocol.NotificationFrame:
		r.dispatch(ctx, f.Notification, f.Stamped)
	case protocol.HeartbeatAckFrame:
		// Consumed by the connection manager.
	case protocol.ErrorFrame:
		r.log.Warn("server reported error", zap.String("message", f.Message))
	case protocol.UnknownFrame:
		r.log.Debug("ignoring unknown frame type", zap.String("type", f.Type))
	default:
		r.log.Debug("ignoring unhandled frame", zap.Stringer("kind", frame.Kind()))
	}
	return frame.Kind()
}

// dispatch stores n and presents it unless it repeats a stored event. A new
// event that the retention cap pushes out at once is still presented.
func (r *Router) dispatch(ctx context.Context, n model.Notification, stamped bool) {
	if n.ID == "" {
		n.ID = syntheticID(n, stamped)
		r.log.Debug("assigned synthetic notification id", zap.String("id", n.ID))
	}

	if _, dup := r.store.Insert(ctx, n); dup {
		return
	}
	if r.presenter == nil {
		return
	}

	switch n.Priority {
	case model.PriorityUrgent:
		r.presenter.PresentUrgent(n)
	case model.PriorityLow:
		// Stored silently.
	default:
		r.presenter.PresentPassive(n)
	}
}

// syntheticID derives a stable id from the notification content so a
// replayed copy of the same event deduplicates. The timestamp only counts
// when the server sent it; a receive time differs on every replay.
func syntheticID(n model.Notification, stamped bool) string {
	parts := []string{n.Type, n.Title, n.Message, n.SubjectID()}
	if stamped {
		parts = append(parts, n.Timestamp.UTC().Format(time.RFC3339Nano))
	}
	name := strings.Join(parts, "\x1f")
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}

func truncate(raw []byte) []byte {
	const max = 256
	if len(raw) > max {
		return raw[:max]
	}
	return raw
}
