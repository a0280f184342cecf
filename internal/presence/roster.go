// Package presence keeps the client's derived view of who is online.
package presence

import (
	"sort"
	"sync"
)

// Roster is a case-sensitive set of member names. It is safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	members map[string]struct{}
}

func NewRoster() *Roster {
	return &Roster{members: make(map[string]struct{})}
}

// Add inserts name and reports whether the roster changed.
func (r *Roster) Add(name string) bool {
	if name == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[name]; exists {
		return false
	}
	r.members[name] = struct{}{}
	return true
}

// Remove deletes name and reports whether it was present.
func (r *Roster) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.members[name]; !exists {
		return false
	}
	delete(r.members, name)
	return true
}

// ReplaceAll discards the current members in favour of an authoritative snapshot.
func (r *Roster) ReplaceAll(names []string) {
	members := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name != "" {
			members[name] = struct{}{}
		}
	}

	r.mu.Lock()
	r.members = members
	r.mu.Unlock()
}

func (r *Roster) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.members[name]
	return exists
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}

// Members returns the names in sorted order.
func (r *Roster) Members() []string {
	r.mu.RLock()
	result := make([]string, 0, len(r.members))
	for name := range r.members {
		result = append(result, name)
	}
	r.mu.RUnlock()

	sort.Strings(result)
	return result
}
