package reader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/plotsync/plotsync/internal/types"
)

// DefaultCacheSize is used when NewCache is given a non-positive size.
const DefaultCacheSize = 64

// Cache memoizes parsed sources. Entries are keyed by format, path and a
// fingerprint of modification time and size over the reader's source root,
// so an edited source always misses. Callers receive deep copies and may mutate them freely.
type Cache struct {
	registry *Registry
	entries  *lru.Cache[string, *types.ParsedProject]
	group    singleflight.Group
}

// NewCache returns a parse cache over the readers in registry. A nil
// registry means the global one.
func NewCache(registry *Registry, size int) (*Cache, error) {
	if registry == nil {
		registry = globalRegistry
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *types.ParsedProject](size)
	if err != nil {
		return nil, fmt.Errorf("create parse cache: %w", err)
	}
	return &Cache{registry: registry, entries: entries}, nil
}

// Parse returns the parsed tree for in.Path, reading it only when the
// source has changed since the last call.
func (c *Cache) Parse(ctx context.Context, format types.Format, in Input) (*types.ParsedProject, error) {
	r, err := c.registry.Get(format)
	if err != nil {
		return nil, err
	}
	scope := in.Path
	if sc, ok := r.(Scoped); ok {
		scope = sc.SourceRoot(in.Path)
	}
	fp, err := fingerprint(scope)
	if err != nil {
		return nil, err
	}
	key := string(format) + "\x00" + in.Path + "\x00" + fp

	if p, ok := c.entries.Get(key); ok {
		return p.Clone(), nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		p, err := r.Parse(ctx, in)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.ParsedProject).Clone(), nil
}

// Len reports the number of cached trees.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Purge drops every cached tree.
func (c *Cache) Purge() {
	c.entries.Purge()
}

// fingerprint summarizes the state of a file or, for directories, of every
// note beneath it.
func fingerprint(path string) (string, error) {
	info, err := StatSource(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size()), nil
	}

	var latest, total int64
	var count int
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		count++
		total += fi.Size()
		if m := fi.ModTime().UnixNano(); m > latest {
			latest = m
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan %s: %w", path, err)
	}
	return fmt.Sprintf("%d:%d:%d", latest, total, count), nil
}
