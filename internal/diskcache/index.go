package diskcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/stratacache/go-strata-cache/internal/entry"
)

// meta is the index-resident slice of an entry: everything except the
// payload and the payload-derived size, so loading the index never touches
// entry files.
type meta struct {
	Key          string     `json:"key"`
	Created      time.Time  `json:"created"`
	LastAccessed time.Time  `json:"lastAccessed"`
	LastModified time.Time  `json:"lastModified"`
	AccessCount  int64      `json:"accessCount"`
	Type         string     `json:"type,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Source       string     `json:"source,omitempty"`
	Priority     int        `json:"priority"`
	Tags         []string   `json:"tags,omitempty"`
	Version      int64      `json:"version"`
	Expires      *time.Time `json:"expires,omitempty"`
}

func metaOf(e *entry.Entry) *meta {
	return &meta{
		Key:          e.Key,
		Created:      e.Created,
		LastAccessed: e.LastAccessed,
		LastModified: e.LastModified,
		AccessCount:  e.AccessCount,
		Type:         e.Type,
		Dependencies: e.Dependencies,
		Source:       e.Source,
		Priority:     e.Priority,
		Tags:         e.Tags,
		Version:      e.Version,
		Expires:      e.Expires,
	}
}

func (m *meta) isExpired(now time.Time) bool {
	return m.Expires != nil && now.After(*m.Expires)
}

// loadIndexLocked reads the index file and rebuilds the tag/source inverted
// maps. A missing index file yields an empty cache.
func (c *Cache) loadIndexLocked() error {
	path := filepath.Join(c.cfg.Dir, c.cfg.IndexName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache index %s: %w", path, err)
	}

	var idx map[string]*meta
	if err = json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("unmarshal cache index %s: %w", path, err)
	}
	c.index = idx
	for key, m := range idx {
		c.indexRefsLocked(key, m)
	}
	return nil
}

// flushIndexLocked writes the index atomically (tmp then rename) so a crash
// mid-write never leaves a truncated index behind.
func (c *Cache) flushIndexLocked() error {
	data, err := json.Marshal(c.index)
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	path := filepath.Join(c.cfg.Dir, c.cfg.IndexName)
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache index %s: %w", tmp, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename cache index %s: %w", path, err)
	}
	c.dirty = false
	return nil
}

func (c *Cache) indexRefsLocked(key string, m *meta) {
	for _, tag := range m.Tags {
		set := c.byTag[tag]
		if set == nil {
			set = make(map[string]struct{})
			c.byTag[tag] = set
		}
		set[key] = struct{}{}
	}
	if m.Source != "" {
		set := c.bySource[m.Source]
		if set == nil {
			set = make(map[string]struct{})
			c.bySource[m.Source] = set
		}
		set[key] = struct{}{}
	}
}

func (c *Cache) dropIndexRefsLocked(key string, m *meta) {
	for _, tag := range m.Tags {
		if set, ok := c.byTag[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(c.byTag, tag)
			}
		}
	}
	if m.Source != "" {
		if set, ok := c.bySource[m.Source]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(c.bySource, m.Source)
			}
		}
	}
}
