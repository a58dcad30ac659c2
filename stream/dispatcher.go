// Package stream implements the live stream dispatcher. Each connected client
// gets one session with its own cancellable polling loop: every tick queries
// the store for the user's newly deliverable notifications past the session's
// cursor and pushes them as one event. There is no message broker; the
// periodic re-query is the delivery mechanism, and it also picks up
// quiet-hours deferrals once their windows close.
package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/libraryhq/notifications/model"
)

var log = logrus.WithFields(logrus.Fields{"package": "stream"})

// Store describes the single store query the dispatcher polls with.
type Store interface {
	ListDeliverableAfter(
		ctx context.Context,
		user, cursor string,
		now time.Time,
		limit uint64,
	) ([]*model.Notification, error)
}

// Polling parameters. The event channel is small on purpose: a slow consumer
// only ever needs the latest cursor delta, which the next tick re-queries.
const (
	DefaultPollInterval = 5 * time.Second
	pollBatchLimit      = 100
	eventBufferSize     = 4
)

// Dispatcher maintains one polling session per connected client. All methods
// are safe for concurrent use.
type Dispatcher struct {
	store    Store
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
	closed   bool
}

// New returns a dispatcher that polls the store on the given interval. A
// non-positive interval selects the default.
func New(store Store, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Dispatcher{
		store:    store,
		interval: interval,
		now:      time.Now,
		sessions: map[string]*Session{},
	}
}

// Connect registers a streaming session for the user and starts its polling
// loop. The lastSeen cursor resumes a previous session; when it is empty the
// cursor starts at the current time, so only notifications created after the
// connection are streamed. The session is torn down when the context is
// cancelled or Disconnect is called.
func (d *Dispatcher) Connect(ctx context.Context, user, lastSeen string) (*Session, error) {
	cursor := lastSeen
	if cursor == "" {
		// A fresh time-ordered identifier sorts after everything already
		// created, which makes it a "now" cursor.
		v7, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		cursor = v7.String()
	}

	session := &Session{
		id:      uuid.NewString(),
		user:    user,
		cursor:  cursor,
		created: d.now(),
		events:  make(chan Event, eventBufferSize),
		done:    make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, context.Canceled
	}
	d.sessions[session.id] = session
	d.wg.Add(1)
	d.mu.Unlock()

	// The connected event is buffered, so this never blocks.
	session.events <- Event{Type: EventConnected}

	go d.poll(ctx, session)
	return session, nil
}

// Disconnect tears down a single session. The session's registry entry is
// removed synchronously; its polling loop stops at the next select.
func (d *Dispatcher) Disconnect(sessionID string) {
	d.mu.Lock()
	session, ok := d.sessions[sessionID]
	if ok {
		delete(d.sessions, sessionID)
	}
	d.mu.Unlock()

	if ok {
		close(session.done)
	}
}

// Close disconnects every session and waits for their polling loops to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	sessions := make([]*Session, 0, len(d.sessions))
	for id, session := range d.sessions {
		sessions = append(sessions, session)
		delete(d.sessions, id)
	}
	d.mu.Unlock()

	for _, session := range sessions {
		close(session.done)
	}
	d.wg.Wait()
}

// SessionCount returns the number of connected sessions.
func (d *Dispatcher) SessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

// poll runs one session's polling loop until the session is disconnected or the
// context is cancelled.
func (d *Dispatcher) poll(ctx context.Context, session *Session) {
	defer d.wg.Done()
	defer close(session.events)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-session.done:
			return
		case <-ctx.Done():
			// Make sure the registry entry goes away even if the caller never
			// calls Disconnect.
			d.mu.Lock()
			delete(d.sessions, session.id)
			d.mu.Unlock()
			return
		case <-ticker.C:
			d.tick(ctx, session)
		}
	}
}

// tick queries the store once and pushes any newly deliverable notifications.
// A query failure is logged and retried on the next tick; it never terminates
// the session.
func (d *Dispatcher) tick(ctx context.Context, session *Session) {
	listing, err := d.store.ListDeliverableAfter(ctx, session.user, session.cursor, d.now(), pollBatchLimit)
	if err != nil {
		log.Errorf("session %s: unable to poll for notifications: %s", session.id, err.Error())
		return
	}
	if len(listing) == 0 {
		return
	}

	event := Event{Type: EventNotifications, Notifications: listing}
	select {
	case session.events <- event:
		// The cursor advances only after a successful push, and identifiers
		// are time-ordered, so no notification is ever emitted twice.
		session.cursor = listing[len(listing)-1].ID
	default:
		// The consumer is slow. Dropping the batch without advancing the
		// cursor means the next tick re-queries a superset instead of
		// buffering an ever-growing backlog here.
	}
}
