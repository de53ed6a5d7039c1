package memcache

import "github.com/stratacache/go-strata-cache/internal/entry"

// Inverted indexes (tag -> keys, source -> keys) are maintained on every
// insert, update and removal so reverse lookups never scan the table.

func (c *Cache) indexLocked(e *entry.Entry) {
	for _, tag := range e.Tags {
		set := c.byTag[tag]
		if set == nil {
			set = make(map[string]struct{})
			c.byTag[tag] = set
		}
		set[e.Key] = struct{}{}
	}
	if e.Source != "" {
		set := c.bySource[e.Source]
		if set == nil {
			set = make(map[string]struct{})
			c.bySource[e.Source] = set
		}
		set[e.Key] = struct{}{}
	}
}

func (c *Cache) unindexLocked(e *entry.Entry) {
	for _, tag := range e.Tags {
		if set, ok := c.byTag[tag]; ok {
			delete(set, e.Key)
			if len(set) == 0 {
				delete(c.byTag, tag)
			}
		}
	}
	if e.Source != "" {
		if set, ok := c.bySource[e.Source]; ok {
			delete(set, e.Key)
			if len(set) == 0 {
				delete(c.bySource, e.Source)
			}
		}
	}
}

// TagIndexKeys exposes the live index content for a tag. Test seam.
func (c *Cache) TagIndexKeys(tag string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return keysOf(c.byTag[tag])
}
