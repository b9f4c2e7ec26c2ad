package connectivity

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultFlagName is the file whose presence marks the data dir offline.
const DefaultFlagName = "offline"

// FlagFile is an Oracle that is offline while a flag file exists. The
// containing directory is watched with fsnotify so `stockroom offline` in
// one terminal is seen by a running daemon in another.
type FlagFile struct {
	*hub

	dir     string
	name    string
	logger  *log.Logger
	watcher *fsnotify.Watcher

	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewFlagFile returns an oracle for <dir>/<name>. An empty name uses
// DefaultFlagName. The initial state is read from disk; call Start to
// follow changes.
func NewFlagFile(dir, name string, logger *log.Logger) *FlagFile {
	if name == "" {
		name = DefaultFlagName
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[connectivity] ", log.LstdFlags)
	}
	f := &FlagFile{
		dir:    dir,
		name:   name,
		logger: logger,
	}
	f.hub = newHub(!f.flagPresent())
	return f
}

// Path returns the flag file path.
func (f *FlagFile) Path() string {
	return filepath.Join(f.dir, f.name)
}

// Start begins watching the directory.
func (f *FlagFile) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return fmt.Errorf("flag watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", f.dir, err)
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	f.running = true

	// The flag may have changed between construction and Add.
	f.set(!f.flagPresent())

	f.wg.Add(1)
	go f.processEvents()
	return nil
}

// Stop stops watching and closes subscriber channels. It blocks until the
// event goroutine has exited.
func (f *FlagFile) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	f.mu.Unlock()

	close(f.done)
	if err := f.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	f.wg.Wait()
	f.closeAll()
	return nil
}

func (f *FlagFile) processEvents() {
	defer f.wg.Done()

	for {
		select {
		case <-f.done:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != f.name {
				continue
			}
			// Ignore chmod; everything else may change presence.
			if event.Op == fsnotify.Chmod {
				continue
			}
			online := !f.flagPresent()
			if f.set(online) {
				f.logger.Printf("Connectivity changed: online=%t (%s %s)", online, event.Op, event.Name)
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Printf("WARNING: watcher error: %v", err)
		}
	}
}

func (f *FlagFile) flagPresent() bool {
	_, err := os.Stat(f.Path())
	return err == nil
}

// SetOffline creates the flag file in dir (idempotent).
func SetOffline(dir, name string) error {
	if name == "" {
		name = DefaultFlagName
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("offline\n"), 0644); err != nil {
		return fmt.Errorf("failed to write flag file %s: %w", path, err)
	}
	return nil
}

// SetOnline removes the flag file from dir (idempotent).
func SetOnline(dir, name string) error {
	if name == "" {
		name = DefaultFlagName
	}
	path := filepath.Join(dir, name)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove flag file %s: %w", path, err)
	}
	return nil
}

// IsOffline reports whether the flag file exists in dir.
func IsOffline(dir, name string) bool {
	if name == "" {
		name = DefaultFlagName
	}
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
