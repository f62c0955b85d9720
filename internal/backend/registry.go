package backend

import (
	"fmt"
	"sort"
	"sync"
)

// HostInfo pairs a host name with its capabilities.
type HostInfo struct {
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered hosts and resolves them by name.
type Registry struct {
	mu    sync.RWMutex
	hosts map[string]Host
}

// NewRegistry creates an empty host registry.
func NewRegistry() *Registry {
	return &Registry{
		hosts: make(map[string]Host),
	}
}

// Register adds a host to the registry under the given name.
func (r *Registry) Register(name string, h Host) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hosts[name] = h
}

// Resolve returns the host registered under name.
func (r *Registry) Resolve(name string) (Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.hosts[name]
	if !ok {
		return nil, fmt.Errorf("host %q is not registered", name)
	}
	return h, nil
}

// Names returns the registered host names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.hosts))
	for name := range r.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns information about all registered hosts, sorted by name
// for a stable API response.
func (r *Registry) List() []HostInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]HostInfo, 0, len(r.hosts))
	for name, h := range r.hosts {
		infos = append(infos, HostInfo{
			Name:         name,
			Capabilities: h.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
