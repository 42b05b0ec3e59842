// Package catalog serves named tree templates loaded from a directory of
// JSON and YAML files. The directory is watched and reloaded on change.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/the-deep/deeptree/internal/codec"
	"github.com/the-deep/deeptree/internal/tree"
)

// ErrNotFound is returned for unknown template names.
var ErrNotFound = errors.New("template not found")

// debounce coalesces bursts of filesystem events into one reload.
const debounce = 200 * time.Millisecond

// Template is one loaded tree.
type Template struct {
	Name  string     `json:"name"`
	Title string     `json:"title"`
	File  string     `json:"file"`
	Nodes int        `json:"nodes"`
	Root  *tree.Node `json:"root,omitempty"`
}

// Catalog holds the templates of one directory.
type Catalog struct {
	dir string
	log *slog.Logger

	mu        sync.RWMutex
	templates map[string]*Template
}

// Open loads every template in dir. Files that fail to load are logged and
// skipped.
func Open(dir string, log *slog.Logger) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("open catalog: %s is not a directory", dir)
	}
	c := &Catalog{dir: dir, log: log}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload rereads the directory and swaps the template set.
func (c *Catalog) Reload() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	next := make(map[string]*Template)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := codec.FormatFor(e.Name()); !ok {
			continue
		}
		t, err := load(filepath.Join(c.dir, e.Name()))
		if err != nil {
			c.log.Warn("skipping template", "file", e.Name(), "error", err)
			continue
		}
		if prev, dup := next[t.Name]; dup {
			c.log.Warn("duplicate template name", "name", t.Name, "file", e.Name(), "kept", prev.File)
			continue
		}
		next[t.Name] = t
	}

	c.mu.Lock()
	c.templates = next
	c.mu.Unlock()
	c.log.Info("catalog loaded", "dir", c.dir, "templates", len(next))
	return nil
}

func load(path string) (*Template, error) {
	format, _ := codec.FormatFor(path)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := codec.DecodeNode(f, format)
	if err != nil {
		return nil, err
	}
	root = codec.FillKeys(root)
	if err := tree.Validate(tree.Forest{root}); err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return &Template{
		Name:  name,
		Title: cmp.Or(root.Label, name),
		File:  base,
		Nodes: tree.Count(tree.Forest{root}),
		Root:  root,
	}, nil
}

// List returns the templates sorted by name, without their trees.
func (c *Catalog) List() []Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Template, 0, len(c.templates))
	for _, t := range c.templates {
		s := *t
		s.Root = nil
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Template) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Get returns a deep copy of the named template.
func (c *Catalog) Get(name string) (*Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	cp := *t
	cp.Root = t.Root.Clone()
	return &cp, nil
}

// Watch reloads the catalog whenever the directory changes, until ctx is
// done.
func (c *Catalog) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch catalog: %w", err)
	}
	if err := w.Add(c.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch catalog: %w", err)
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if _, tracked := codec.FormatFor(ev.Name); !tracked {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.log.Warn("catalog watcher error", "error", err)
			case <-fire:
				fire = nil
				if err := c.Reload(); err != nil {
					c.log.Error("catalog reload failed", "error", err)
				}
			}
		}
	}()
	return nil
}
