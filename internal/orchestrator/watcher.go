package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"telos/internal/store"
)

// InboxWatcher watches intent/inbox and requests a beat when a record file
// lands there, so drops via the filesystem are picked up without waiting
// for the next tick. Rapid writes are debounced into a single request.
type InboxWatcher struct {
	orch        *Orchestrator
	log         *zap.Logger
	watcher     *fsnotify.Watcher
	inboxDir    string
	debounceDur time.Duration
}

// NewInboxWatcher creates a watcher over the store's inbox directory.
func NewInboxWatcher(orch *Orchestrator, dataDir string, log *zap.Logger) (*InboxWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &InboxWatcher{
		orch:        orch,
		log:         log,
		watcher:     watcher,
		inboxDir:    filepath.Join(dataDir, store.StateInbox.Dir()),
		debounceDur: 500 * time.Millisecond,
	}, nil
}

// Run watches until ctx is cancelled. It blocks; callers run it in its own
// goroutine.
func (w *InboxWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.watcher.Add(w.inboxDir); err != nil {
		return err
	}
	w.log.Info("watching inbox", zap.String("dir", w.inboxDir))

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// Reset the timer so a burst of writes collapses into one
			// beat request after the inbox goes quiet.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounceDur, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			if w.orch.RequestBeat() {
				w.log.Debug("beat requested for inbox drop")
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

// relevant filters the event stream down to markdown record files being
// created or written. Moves out of the inbox and directory chatter are
// ignored.
func (w *InboxWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return false
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return strings.HasSuffix(name, ".md")
}
