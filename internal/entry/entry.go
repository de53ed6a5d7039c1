// Package entry holds the cache entry value object shared by every tier:
// payload plus access/lifecycle metadata, size estimation and expiry checks.
package entry

import (
	"time"
)

type Entry struct {
	Key          string     `json:"key"`
	Value        any        `json:"value"`
	Created      time.Time  `json:"created"`
	LastAccessed time.Time  `json:"lastAccessed"`
	LastModified time.Time  `json:"lastModified"`
	AccessCount  int64      `json:"accessCount"`
	Size         int64      `json:"size"`
	Type         string     `json:"type,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Source       string     `json:"source,omitempty"`
	Priority     int        `json:"priority"`
	Tags         []string   `json:"tags,omitempty"`
	Version      int64      `json:"version"`
	Expires      *time.Time `json:"expires,omitempty"` // nil = never expires
}

// New builds a live entry with version 1. A non-positive ttl means the entry
// never expires.
func New(key string, value any, ttl time.Duration) *Entry {
	now := time.Now()
	e := &Entry{
		Key:          key,
		Value:        value,
		Created:      now,
		LastAccessed: now,
		LastModified: now,
		Size:         EstimateSize(value),
		Version:      1,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		e.Expires = &exp
	}
	return e
}

// IsExpired is a pure function of Expires vs. the supplied clock reading.
func (e *Entry) IsExpired(now time.Time) bool {
	return e.Expires != nil && now.After(*e.Expires)
}

// Touch records a read: bumps the access counter and the last-access stamp.
// Never changes Version.
func (e *Entry) Touch(now time.Time) {
	e.LastAccessed = now
	e.AccessCount++
}

// UpdateValue replaces the payload in place: resets LastModified, recomputes
// Size and bumps Version. A positive ttl resets Expires; zero leaves the
// current expiry untouched; a negative ttl clears it.
func (e *Entry) UpdateValue(value any, ttl time.Duration) {
	now := time.Now()
	e.Value = value
	e.Size = EstimateSize(value)
	e.LastModified = now
	e.Version++
	switch {
	case ttl > 0:
		exp := now.Add(ttl)
		e.Expires = &exp
	case ttl < 0:
		e.Expires = nil
	}
}

// Absorb replaces the classification metadata with the incoming entry's
// during an in-place update, so a re-set without tags or source clears the
// old classification instead of keeping it. Value, size, version and expiry
// are handled by UpdateValue.
func (e *Entry) Absorb(in *Entry) {
	e.Type = in.Type
	e.Source = in.Source
	e.Priority = in.Priority
	e.Tags = in.Tags
	e.Dependencies = in.Dependencies
}

// HasTag reports whether the entry's tag set contains tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TTL returns the remaining lifetime, or zero when the entry never expires.
func (e *Entry) TTL(now time.Time) time.Duration {
	if e.Expires == nil {
		return 0
	}
	if d := e.Expires.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Clone returns a shallow copy safe to hand to another tier. The payload is
// shared; metadata mutations on the copy do not leak back.
func (e *Entry) Clone() *Entry {
	cp := *e
	if e.Expires != nil {
		exp := *e.Expires
		cp.Expires = &exp
	}
	cp.Tags = append([]string(nil), e.Tags...)
	cp.Dependencies = append([]string(nil), e.Dependencies...)
	return &cp
}
