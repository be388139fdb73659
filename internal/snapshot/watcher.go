package snapshot

import (
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval is the delay after an fsnotify event before checking the
// checksum, letting an atomic write (temp file + rename) settle first.
const debounceInterval = 100 * time.Millisecond

// Watcher signals when the snapshot file changes on disk underneath a
// running session, e.g. another flowboard process saving a refresh. Events
// are checksum gated so a rewrite with identical content stays silent.
type Watcher struct {
	path     string
	lastHash [sha256.Size]byte
	changes  chan struct{}
	stop     chan struct{}
	watcher  *fsnotify.Watcher
}

func NewWatcher(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the parent directory, not the file: the store replaces the
	// file by rename, which changes the inode.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		changes: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		watcher: fsw,
	}
	w.lastHash, _ = hashFile(path)
	go w.loop()
	return w, nil
}

// Changes delivers at most one pending notification; rapid rewrites
// coalesce.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

func (w *Watcher) Close() error {
	close(w.stop)
	return w.watcher.Close()
}

func (w *Watcher) loop() {
	fileName := filepath.Base(w.path)
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != fileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceInterval, w.checkAndNotify)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("snapshot watcher error", "component", "snapshot", "error", err)

		case <-w.stop:
			return
		}
	}
}

func (w *Watcher) checkAndNotify() {
	newHash, err := hashFile(w.path)
	if err != nil {
		return
	}
	if newHash == w.lastHash {
		return
	}
	w.lastHash = newHash
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

func hashFile(path string) ([sha256.Size]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [sha256.Size]byte{}, err
	}
	var result [sha256.Size]byte
	copy(result[:], h.Sum(nil))
	return result, nil
}
