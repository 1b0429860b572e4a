package activity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-account/pkg/utilities"
)

// writeTimeout bounds a single audit write, independent of the caller's deadline.
const writeTimeout = 5 * time.Second

// Writer persists events.
type Writer interface {
	Insert(ctx context.Context, e entity.Event) error
}

// DispatchConfig controls whether events are written inline or through the
// background queue. The queue always exists for AppendDetached.
type DispatchConfig struct {
	Async      bool
	BufferSize int
	DropIfFull bool
}

// Recorder appends audit events on behalf of the account flows. It never
// reports write failures to the caller: they are logged and the primary
// operation carries on.
type Recorder struct {
	store  Writer
	ids    *utilities.IDGenerator
	logger *zap.SugaredLogger
	async  bool
	queue  *dispatcher
}

// NewRecorder builds a Recorder and starts its background writer; call Close
// to drain it. With cfg.Async every Append goes through the queue.
func NewRecorder(store Writer, ids *utilities.IDGenerator, logger *zap.SugaredLogger, cfg DispatchConfig) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Recorder{store: store, ids: ids, logger: logger, async: cfg.Async}
	r.queue = newDispatcher(cfg, r.write)
	return r
}

// Append records an event for accountID. The event ID and timestamp are
// fixed here, so events keep the order in which Append was called even when
// they are written later by the dispatcher.
func (r *Recorder) Append(ctx context.Context, accountID int64, action entity.Action, details string) {
	if r == nil {
		return
	}
	e := r.event(ctx, accountID, action, details)
	if r.async {
		r.enqueue(ctx, e)
		return
	}
	r.write(context.WithoutCancel(ctx), e)
}

// AppendDetached records an event without writing it on the caller's path,
// whatever the dispatch mode. Ordering still follows call order because the
// ID and timestamp are fixed here.
func (r *Recorder) AppendDetached(ctx context.Context, accountID int64, action entity.Action, details string) {
	if r == nil {
		return
	}
	r.enqueue(ctx, r.event(ctx, accountID, action, details))
}

func (r *Recorder) event(ctx context.Context, accountID int64, action entity.Action, details string) entity.Event {
	id, at := r.ids.NextWithTime()
	return entity.Event{
		ID:        id,
		AccountID: accountID,
		Action:    action,
		Details:   details,
		IPAddress: ClientIP(ctx),
		Timestamp: at,
	}
}

func (r *Recorder) enqueue(ctx context.Context, e entity.Event) {
	if !r.queue.Emit(context.WithoutCancel(ctx), e) {
		r.logger.Warnw("audit event not queued", "account_id", e.AccountID, "action", e.Action)
	}
}

func (r *Recorder) write(ctx context.Context, e entity.Event) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := r.store.Insert(ctx, e); err != nil {
		r.logger.Errorw("audit append failed",
			"err", err,
			"event_id", e.ID,
			"account_id", e.AccountID,
			"action", e.Action,
		)
	}
}

// Dropped returns how many events the async queue discarded.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.queue.Dropped()
}

// Flush waits until queued events have been written.
func (r *Recorder) Flush() {
	if r == nil {
		return
	}
	r.queue.Flush()
}

// Close stops the background writer after flushing queued events.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.queue.Close()
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address so recorded events carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the address stored by WithClientIP, or "".
func ClientIP(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
