package connection

import (
	"sort"
	"sync"
)

// Kind classifies a subscription topic.
type Kind string

// KindTask watches a single task. The only kind today; the field exists so
// the wire protocol can grow goal- or agent-scoped subscriptions.
const KindTask Kind = "task"

// Subscription is one active topic registration. Entries survive reconnects
// and are dropped only by Unsubscribe or manager shutdown.
type Subscription struct {
	Topic string
	Kind  Kind
}

// subscriptionRegistry reference-counts topic interest. Two independent
// consumers may subscribe to the same topic; the entry lives until both
// unsubscribe. Mutation happens on the run loop, reads from anywhere.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	refs map[string]int
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{
		refs: make(map[string]int),
	}
}

// add increments the refcount for topic and reports whether this is the
// first reference (the only case that sends a subscribe frame).
func (r *subscriptionRegistry) add(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs[topic]++
	return r.refs[topic] == 1
}

// remove decrements the refcount and reports whether the last reference
// was dropped. Removing an unknown topic is a no-op.
func (r *subscriptionRegistry) remove(topic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.refs[topic]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(r.refs, topic)
		return true
	}
	r.refs[topic] = n - 1
	return false
}

// topics returns all subscribed topics, sorted for deterministic replay.
func (r *subscriptionRegistry) topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.refs))
	for topic := range r.refs {
		out = append(out, topic)
	}
	sort.Strings(out)
	return out
}

// watching reports whether topic has at least one reference.
func (r *subscriptionRegistry) watching(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.refs[topic]
	return ok
}

// empty reports whether the registry holds no subscriptions. An empty
// registry means the consumer is unscoped and receives all domain messages.
func (r *subscriptionRegistry) empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs) == 0
}
