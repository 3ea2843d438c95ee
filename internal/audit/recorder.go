// Package audit records state-changing operations without ever blocking or
// failing them.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"panelhub/internal/models"
)

var dropped = promauto.NewCounter(prometheus.CounterOpts{
	Name: "panelhub_audit_dropped_total",
	Help: "Audit events dropped because the buffer was full or the recorder stopped.",
})

// Event is one audited action.
type Event struct {
	ActorID uint
	Action  string
	Target  string
	Meta    map[string]interface{}
	At      time.Time
}

// Store persists audit rows.
type Store interface {
	Create(entry *models.AuditLog) error
}

// Notifier forwards selected events to humans.
type Notifier interface {
	Notify(title string, lines ...string) error
}

// Recorder buffers events and writes them on a background goroutine.
type Recorder struct {
	store    Store
	log      *zap.Logger
	ch       chan Event
	notifier Notifier
	notify   map[string]bool

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a Recorder with the given buffer size.
func New(store Store, log *zap.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{
		store: store,
		log:   log,
		ch:    make(chan Event, buffer),
		done:  make(chan struct{}),
	}
}

// WithNotifier forwards the listed actions (all when none given) to n.
func (r *Recorder) WithNotifier(n Notifier, actions ...string) *Recorder {
	r.notifier = n
	if len(actions) > 0 {
		r.notify = make(map[string]bool, len(actions))
		for _, a := range actions {
			r.notify[a] = true
		}
	}
	return r
}

// Start launches the writer goroutine.
func (r *Recorder) Start() {
	go r.run()
}

// Stop drains the buffer, waiting at most until ctx is done.
func (r *Recorder) Stop(ctx context.Context) {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-ctx.Done():
		r.log.Warn("audit drain interrupted", zap.Int("pending", len(r.ch)))
	}
}

// Record enqueues an event. It never blocks; a full buffer drops the event.
func (r *Recorder) Record(ev Event) {
	if r == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		dropped.Inc()
		return
	}
	select {
	case r.ch <- ev:
	default:
		dropped.Inc()
		r.log.Warn("audit buffer full, event dropped", zap.String("action", ev.Action), zap.String("target", ev.Target))
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for ev := range r.ch {
		r.write(ev)
	}
}

func (r *Recorder) write(ev Event) {
	meta := ""
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			meta = string(b)
		}
	}
	entry := &models.AuditLog{Action: ev.Action, Target: ev.Target, Meta: meta, CreatedAt: ev.At}
	if ev.ActorID != 0 {
		actor := ev.ActorID
		entry.UserID = &actor
	}
	if err := r.store.Create(entry); err != nil {
		r.log.Warn("audit write failed", zap.String("action", ev.Action), zap.Error(err))
	}

	if r.notifier == nil || (r.notify != nil && !r.notify[ev.Action]) {
		return
	}
	if err := r.notifier.Notify(ev.Action, describe(ev)...); err != nil {
		r.log.Warn("audit notification failed", zap.String("action", ev.Action), zap.Error(err))
	}
}

func describe(ev Event) []string {
	lines := []string{
		fmt.Sprintf("target: %s", ev.Target),
		fmt.Sprintf("actor: %d", ev.ActorID),
	}
	keys := make([]string, 0, len(ev.Meta))
	for k := range ev.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, ev.Meta[k]))
	}
	return lines
}
