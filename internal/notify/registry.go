package notify

import (
	"sort"

	"github.com/gosuda/subtrack/internal/messenger"
)

// Registry is a simple map-based MessengerRegistry.
type Registry struct {
	messengers map[string]messenger.Messenger
}

// NewRegistry creates a Registry holding the given messengers keyed by their platform.
func NewRegistry(ms ...messenger.Messenger) *Registry {
	r := &Registry{
		messengers: make(map[string]messenger.Messenger, len(ms)),
	}
	for _, m := range ms {
		r.Register(m.Platform(), m)
	}
	return r
}

// Register adds a messenger for the given platform name.
func (r *Registry) Register(platform string, m messenger.Messenger) {
	r.messengers[platform] = m
}

// Get returns the messenger for the given platform, or false if not registered.
func (r *Registry) Get(platform string) (messenger.Messenger, bool) {
	m, ok := r.messengers[platform]
	return m, ok
}

// Platforms lists registered platform names in sorted order.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.messengers))
	for p := range r.messengers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
