package authorize

import (
	"fmt"
	"slices"
	"sort"
	"sync"
)

// Tool is one entry in the capability registry
type Tool struct {
	Name                   string   `yaml:"name" json:"name"`
	WorldAffecting         bool     `yaml:"world_affecting" json:"world_affecting"`
	RequiresExplicitIntent bool     `yaml:"requires_explicit_intent" json:"requires_explicit_intent"`
	AllowedKeys            []string `yaml:"allowed_keys" json:"allowed_keys"`
}

// Allows reports whether key is a declared argument of the tool
func (t Tool) Allows(key string) bool {
	return slices.Contains(t.AllowedKeys, key)
}

// Registry is the table of tools the gate knows about. It is filled at
// startup and only read afterwards.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding tools
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		r.tools[t.Name] = t
	}
	return r
}

// DefaultTools is the stock capability table
func DefaultTools() []Tool {
	return []Tool{
		{Name: "led_on", WorldAffecting: true, RequiresExplicitIntent: true},
		{Name: "led_off", WorldAffecting: true, RequiresExplicitIntent: true},
		{Name: "tasks.add", WorldAffecting: true, RequiresExplicitIntent: true, AllowedKeys: []string{"text"}},
		{Name: "tasks.clear", WorldAffecting: true, RequiresExplicitIntent: true},
		{Name: "tasks.complete", WorldAffecting: true, AllowedKeys: []string{"id"}},
		{Name: "tasks.list"},
		{Name: "system.status"},
		{Name: "discord.post", WorldAffecting: true, RequiresExplicitIntent: true, AllowedKeys: []string{"content"}},
	}
}

// DefaultRegistry returns a registry of DefaultTools
func DefaultRegistry() *Registry {
	return NewRegistry(DefaultTools()...)
}

// Register adds a tool. Names are unique; redefining a tool is refused so a
// config file can't quietly relax a stock entry.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool has no name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool %q already registered", t.Name)
	}
	t.AllowedKeys = slices.Clone(t.AllowedKeys)
	r.tools[t.Name] = t
	return nil
}

// Lookup returns the named tool
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if ok {
		t.AllowedKeys = slices.Clone(t.AllowedKeys)
	}
	return t, ok
}

// Names returns the registered tool names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
