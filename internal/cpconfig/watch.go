package cpconfig

import (
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a Config from disk whenever its file changes and
// publishes the new value on Changes. Callers that don't need hot
// reload can ignore it entirely; LoadFromFile alone is sufficient.
type Watcher struct {
	path    string
	Changes chan *Config

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher starts watching path's containing directory (editors
// typically replace a file rather than write it in place, which
// unregisters an fsnotify watch on the file itself) and reloads on any
// write or create event targeting path.
func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:    path,
		Changes: make(chan *Config, 1),
		watcher: fw,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFromFile(w.path)
			if err != nil {
				log.Printf("cpconfig: reload %s failed: %v", w.path, err)
				continue
			}
			select {
			case w.Changes <- cfg:
			default: // drop stale pending reload, latest always wins
				select {
				case <-w.Changes:
				default:
				}
				w.Changes <- cfg
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("cpconfig: watch error: %v", err)
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
