package autosave

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/report-vault/internal/versions"
)

// ErrNotOpen is returned for a document without a running scheduler
var ErrNotOpen = errors.New("document has no active auto-save")

// headReader is implemented by savers that can report the current head, so
// a new scheduler does not re-save what is already stored
type headReader interface {
	Head(ctx context.Context, documentID string) (*versions.ReportVersion, error)
}

type session struct {
	scheduler *Scheduler
	cancel    context.CancelFunc
	done      chan struct{}
}

// Manager runs one scheduler per open document
type Manager struct {
	mu       sync.Mutex
	ctx      context.Context
	saver    Saver
	opts     Options
	sessions map[string]*session
}

// NewManager creates a manager whose schedulers stop when ctx is cancelled
func NewManager(ctx context.Context, saver Saver, opts Options) *Manager {
	return &Manager{
		ctx:      ctx,
		saver:    saver,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*session),
	}
}

// Open returns the scheduler for documentID, starting one if needed. The
// stored head is read with ctx before the scheduler is registered.
func (m *Manager) Open(ctx context.Context, documentID string) (*Scheduler, error) {
	if documentID == "" {
		return nil, fmt.Errorf("document id must not be empty")
	}

	if sched, ok := m.Get(documentID); ok {
		return sched, nil
	}

	sched := New(documentID, m.saver, m.opts)
	if hr, ok := m.saver.(headReader); ok {
		head, err := hr.Head(ctx, documentID)
		switch {
		case err == nil:
			sched.Seed(head.Content)
		case errors.Is(err, versions.ErrNotFound):
		default:
			return nil, fmt.Errorf("failed to read head of %s: %w", documentID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// another caller may have opened the document while the head was read
	if sess, ok := m.sessions[documentID]; ok {
		return sess.scheduler, nil
	}

	runCtx, cancel := context.WithCancel(m.ctx)
	sess := &session{scheduler: sched, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sess.done)
		sched.Run(runCtx)
	}()
	m.sessions[documentID] = sess

	m.opts.Logger.Debug().Str("document_id", documentID).Msg("auto-save started")
	return sched, nil
}

// Notify forwards a content change, opening the document if needed
func (m *Manager) Notify(ctx context.Context, documentID, content string) (*Scheduler, error) {
	sched, err := m.Open(ctx, documentID)
	if err != nil {
		return nil, err
	}
	sched.ContentChanged(content)
	return sched, nil
}

// Get returns the scheduler of an open document
func (m *Manager) Get(documentID string) (*Scheduler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[documentID]
	if !ok {
		return nil, false
	}
	return sess.scheduler, true
}

// Documents lists the open documents
func (m *Manager) Documents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	docs := make([]string, 0, len(m.sessions))
	for doc := range m.sessions {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	return docs
}

// Close stops the scheduler of documentID. With flush, pending content is
// saved first; otherwise it is discarded.
func (m *Manager) Close(ctx context.Context, documentID string, flush bool) error {
	m.mu.Lock()
	sess, ok := m.sessions[documentID]
	if ok {
		delete(m.sessions, documentID)
	}
	m.mu.Unlock()

	if !ok {
		return ErrNotOpen
	}

	sess.cancel()
	<-sess.done

	var err error
	if flush {
		_, err = sess.scheduler.SaveNow(ctx)
	}
	sess.scheduler.Cancel()

	m.opts.Logger.Debug().Str("document_id", documentID).Bool("flush", flush).Msg("auto-save stopped")
	return err
}

// CloseAll closes every open document
func (m *Manager) CloseAll(ctx context.Context, flush bool) error {
	var errs []error
	for _, doc := range m.Documents() {
		if err := m.Close(ctx, doc, flush); err != nil && !errors.Is(err, ErrNotOpen) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
