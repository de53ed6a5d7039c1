package manager

import "time"

type getOptions struct {
	peek        bool
	throwOnMiss bool
}

type GetOption func(*getOptions)

// Peek suppresses access-stat updates and the predictive access feed.
func Peek() GetOption {
	return func(o *getOptions) { o.peek = true }
}

// ThrowOnMiss makes Get return ErrMiss instead of a plain miss, including
// for entries found expired at access time.
func ThrowOnMiss() GetOption {
	return func(o *getOptions) { o.throwOnMiss = true }
}

func applyGetOptions(opts []GetOption) getOptions {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type setOptions struct {
	ttl          time.Duration
	ttlSet       bool
	contentType  string
	tags         []string
	source       string
	priority     int
	prioritySet  bool
	dependencies []string
}

type SetOption func(*setOptions)

// WithTTL overrides the context-derived TTL. Zero or negative means never
// expire.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.ttl, o.ttlSet = ttl, true }
}

// WithContentType classifies the entry and selects its cache policy.
func WithContentType(ct string) SetOption {
	return func(o *setOptions) { o.contentType = ct }
}

func WithTags(tags ...string) SetOption {
	return func(o *setOptions) { o.tags = tags }
}

func WithSource(source string) SetOption {
	return func(o *setOptions) { o.source = source }
}

func WithPriority(priority int) SetOption {
	return func(o *setOptions) { o.priority, o.prioritySet = priority, true }
}

// WithDependencies records the keys this entry derives from.
func WithDependencies(keys ...string) SetOption {
	return func(o *setOptions) { o.dependencies = keys }
}

func applySetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
