package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/plotsync/plotsync/internal/config"
	"github.com/plotsync/plotsync/internal/syncer"
	"github.com/plotsync/plotsync/internal/types"
	"github.com/plotsync/plotsync/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <project>",
	GroupID: GroupSync,
	Short:   "Show a fresh sync preview whenever the source changes",
	Long: `Watch the project's source and print a new sync preview each time it
settles after a change. Nothing is applied. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p := mustProject(args[0])
		src := types.Deref(p.SourcePath)
		if src == "" {
			FatalErrorWithHint(fmt.Sprintf("project %s has no source to watch", p.ID), "Only imported projects can be watched")
		}
		engine := newEngine()

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			FatalError("create watcher: %v", err)
		}
		defer func() { _ = watcher.Close() }()

		w := newSourceWatch(src, p.SourceFormat)
		for _, dir := range w.dirs() {
			if err := watcher.Add(dir); err != nil {
				FatalError("watch %s: %v", dir, err)
			}
		}

		showPreview(engine, p)
		fmt.Fprintf(os.Stderr, "\nWatching %s for changes... (Press Ctrl+C to exit)\n", src)

		debounceDelay := config.GetWatchDebounce()
		var debounceTimer *time.Timer
		refresh := make(chan struct{}, 1)

		for {
			select {
			case <-rootCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Has(fsnotify.Create) && w.recursive {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !hiddenDir(event.Name) {
						_ = watcher.Add(event.Name)
					}
				}
				if !w.relevant(event) {
					continue
				}
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					select {
					case refresh <- struct{}{}:
					default:
					}
				})
			case <-refresh:
				showPreview(engine, p)
				fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				WarnError("watcher: %v", err)
			}
		}
	},
}

func showPreview(engine *syncer.Engine, p *types.Project) {
	preview, err := engine.Preview(rootCtx, p.ID)
	if err != nil {
		WarnError("%v", err)
		return
	}
	if jsonOutput {
		outputJSON(preview)
		return
	}
	fmt.Printf("\n%s\n", ui.RenderMuted(time.Now().Format("15:04:05")))
	fmt.Print(ui.RenderPreview(preview, p.Title))
}

// sourceWatch decides which directories to watch and which events matter.
// Single-file formats watch the parent directory since editors often
// replace files on save. Vaults are watched recursively.
type sourceWatch struct {
	path      string
	root      string
	recursive bool
}

func newSourceWatch(path string, format types.Format) *sourceWatch {
	w := &sourceWatch{path: filepath.Clean(path), root: filepath.Dir(path)}
	if format == types.FormatVault {
		w.recursive = true
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			w.root = w.path
		}
	}
	return w
}

func (w *sourceWatch) dirs() []string {
	if !w.recursive {
		return []string{w.root}
	}
	var out []string
	_ = filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != w.root && hiddenDir(path) {
			return filepath.SkipDir
		}
		out = append(out, path)
		return nil
	})
	return out
}

func (w *sourceWatch) relevant(ev fsnotify.Event) bool {
	if ev.Op == fsnotify.Chmod {
		return false
	}
	name := filepath.Clean(ev.Name)
	if !w.recursive {
		return name == w.path
	}
	rel, err := filepath.Rel(w.root, name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

func hiddenDir(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
