// Package observer watches project spec.md files and triggers runs when
// they change, the local counterpart to the changed-files trigger the
// hosting workflow uses.
package observer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// SpecChangeCallback is called when project spec files change.
// project is the name of the project directory that changed.
type SpecChangeCallback func(project string, changedFiles []string)

// SpecWatcher monitors a projects directory for spec.md changes
type SpecWatcher struct {
	watcher     *fsnotify.Watcher
	callback    SpecChangeCallback
	debounce    time.Duration
	projectPath string

	// Debounce state - pending files by project
	pending map[string]map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewSpecWatcher creates a watcher rooted at the projects directory
func NewSpecWatcher(projectPath string, callback SpecChangeCallback) (*SpecWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	sw := &SpecWatcher{
		watcher:     watcher,
		callback:    callback,
		debounce:    500 * time.Millisecond, // Debounce rapid changes
		projectPath: projectPath,
		pending:     make(map[string]map[string]struct{}),
	}

	// Watch the projects root and each project subdirectory
	if err := watcher.Add(projectPath); err != nil {
		watcher.Close()
		return nil, err
	}
	entries, err := os.ReadDir(projectPath)
	if err != nil {
		watcher.Close()
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			// Best effort; a project removed mid-walk is fine
			watcher.Add(filepath.Join(projectPath, entry.Name()))
		}
	}

	return sw, nil
}

// Start begins watching for file changes
func (sw *SpecWatcher) Start(ctx context.Context) {
	ctx, sw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sw.watcher.Events:
				if !ok {
					return
				}
				sw.handleEvent(event)
			case _, ok := <-sw.watcher.Errors:
				if !ok {
					return
				}
				// Log error but continue watching
			}
		}
	}()
}

// Stop stops watching for file changes
func (sw *SpecWatcher) Stop() {
	if sw.cancel != nil {
		sw.cancel()
	}
	sw.watcher.Close()
}

func (sw *SpecWatcher) handleEvent(event fsnotify.Event) {
	// A new project directory needs its own watch
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			sw.watcher.Add(event.Name)
			return
		}
	}

	if filepath.Base(event.Name) != "spec.md" {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	project := sw.projectOf(event.Name)
	if project == "" {
		return
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.pending[project] == nil {
		sw.pending[project] = make(map[string]struct{})
	}
	sw.pending[project][event.Name] = struct{}{}

	// Reset or start debounce timer
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, sw.flush)
}

// projectOf maps a spec file path to its project directory name
func (sw *SpecWatcher) projectOf(filePath string) string {
	rel, err := filepath.Rel(sw.projectPath, filePath)
	if err != nil {
		return ""
	}
	dir := filepath.Dir(rel)
	if dir == "." || filepath.Dir(dir) != "." {
		return "" // spec.md must sit directly under <projectPath>/<name>/
	}
	return dir
}

func (sw *SpecWatcher) flush() {
	sw.mu.Lock()
	pending := sw.pending
	sw.pending = make(map[string]map[string]struct{})
	sw.mu.Unlock()

	if sw.callback == nil {
		return
	}

	for project, fileMap := range pending {
		files := make([]string, 0, len(fileMap))
		for f := range fileMap {
			files = append(files, f)
		}
		if len(files) > 0 {
			sw.callback(project, files)
		}
	}
}

// SetDebounce sets the debounce duration for batching file changes
func (sw *SpecWatcher) SetDebounce(d time.Duration) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.debounce = d
}
