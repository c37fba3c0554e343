package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind tells the registry how a module is reached.
type Kind int

const (
	KindSlash Kind = iota + 1
	KindPrefix
	KindInitializer
)

func (k Kind) String() string {
	switch k {
	case KindSlash:
		return "slash"
	case KindPrefix:
		return "prefix"
	case KindInitializer:
		return "initializer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// InitFunc runs once when the transport is ready.
type InitFunc func(ctx context.Context) error

// Module is one registrable unit. Build it with Slash, Prefix or Initializer;
// the kind is always explicit.
type Module struct {
	Path    string
	Kind    Kind
	Command Command

	name string
	init InitFunc
}

func Slash(path string, c Command) Module {
	return Module{Path: path, Kind: KindSlash, Command: c}
}

func Prefix(path string, c Command) Module {
	return Module{Path: path, Kind: KindPrefix, Command: c}
}

func Initializer(path, name string, fn InitFunc) Module {
	return Module{Path: path, Kind: KindInitializer, name: name, init: fn}
}

// Name is the command name, or the initializer name.
func (m Module) Name() string {
	if m.Kind == KindInitializer {
		return m.name
	}
	if m.Command == nil {
		return ""
	}
	return m.Command.Name()
}

// Init runs the initializer; it is a no-op for other kinds.
func (m Module) Init(ctx context.Context) error {
	if m.init == nil {
		return nil
	}
	return m.init(ctx)
}

// Registry indexes modules by kind and name. A second registration of the
// same name within a kind replaces the first. It is safe for concurrent
// reads once loading is done; registration itself is also locked.
type Registry struct {
	mu           sync.RWMutex
	byKind       map[Kind]map[string]Module
	aliases      map[string]string
	components   map[string]string // custom ID prefix -> slash name
	initializers []string
}

func NewRegistry() *Registry {
	return &Registry{
		byKind: map[Kind]map[string]Module{
			KindSlash:       {},
			KindPrefix:      {},
			KindInitializer: {},
		},
		aliases:    map[string]string{},
		components: map[string]string{},
	}
}

// Load registers modules in order of their Path. Modules sharing a path keep
// their relative order, so the last one in the argument list wins.
func (r *Registry) Load(mods ...Module) error {
	sorted := make([]Module, len(mods))
	copy(sorted, mods)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, m := range sorted {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// Register adds one module. Duplicate names within a kind overwrite.
func (r *Registry) Register(m Module) error {
	name := m.Name()
	if name == "" {
		return fmt.Errorf("register %s module %q: empty name", m.Kind, m.Path)
	}
	if m.Kind != KindInitializer && m.Command == nil {
		return fmt.Errorf("register %s module %q: nil command", m.Kind, m.Path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch m.Kind {
	case KindSlash:
		r.byKind[KindSlash][name] = m
		if cr, ok := Root(m.Command).(ComponentRouter); ok {
			for _, p := range cr.ComponentPrefixes() {
				if p != "" {
					r.components[p] = name
				}
			}
		}
	case KindPrefix:
		key := strings.ToLower(name)
		r.byKind[KindPrefix][key] = m
		delete(r.aliases, key)
		// aliases of a replaced command go with it
		for a, target := range r.aliases {
			if target == key {
				delete(r.aliases, a)
			}
		}
		if al, ok := Root(m.Command).(Aliased); ok {
			for _, a := range al.Aliases() {
				r.aliases[strings.ToLower(a)] = key
			}
		}
	case KindInitializer:
		if _, exists := r.byKind[KindInitializer][name]; !exists {
			r.initializers = append(r.initializers, name)
		}
		r.byKind[KindInitializer][name] = m
	default:
		return fmt.Errorf("register module %q: unknown kind %d", m.Path, int(m.Kind))
	}
	return nil
}

// Resolve looks up a command by kind and name. Prefix names are matched
// case-insensitively and through aliases.
func (r *Registry) Resolve(kind Kind, name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if kind == KindPrefix {
		name = strings.ToLower(name)
		if target, ok := r.aliases[name]; ok {
			if _, direct := r.byKind[KindPrefix][name]; !direct {
				name = target
			}
		}
	}
	m, ok := r.byKind[kind][name]
	if !ok || m.Command == nil {
		return nil, false
	}
	return m.Command, true
}

// ResolveComponent finds the slash command owning customID. The longest
// registered prefix wins.
func (r *Registry) ResolveComponent(customID string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	for p := range r.components {
		if strings.HasPrefix(customID, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return nil, false
	}
	m, ok := r.byKind[KindSlash][r.components[best]]
	return m.Command, ok
}

// Commands returns the commands of one kind sorted by name.
func (r *Registry) Commands(kind Kind) []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Command, 0, len(r.byKind[kind]))
	for _, m := range r.byKind[kind] {
		if m.Command != nil {
			list = append(list, m.Command)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

// Initializers returns initializer modules in first-registration order.
func (r *Registry) Initializers() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Module, 0, len(r.initializers))
	for _, name := range r.initializers {
		out = append(out, r.byKind[KindInitializer][name])
	}
	return out
}

// Modules returns the modules of one kind sorted by path.
func (r *Registry) Modules(kind Kind) []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Module, 0, len(r.byKind[kind]))
	for _, m := range r.byKind[kind] {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Path == list[j].Path {
			return list[i].Name() < list[j].Name()
		}
		return list[i].Path < list[j].Path
	})
	return list
}
