package domain

// Registry groups the entities of one collection pass by kind, in traversal order.
type Registry struct {
	Tools     []Entity `json:"tools"`
	Resources []Entity `json:"resources"`
	Prompts   []Entity `json:"prompts"`
}

// Duplicate reports a name declared more than once within a kind.
type Duplicate struct {
	Kind  Kind     `json:"kind"`
	Name  string   `json:"name"`
	Paths []string `json:"paths"`
}

func NewRegistry() Registry {
	return Registry{
		Tools:     []Entity{},
		Resources: []Entity{},
		Prompts:   []Entity{},
	}
}

func (r Registry) Len() int {
	return len(r.Tools) + len(r.Resources) + len(r.Prompts)
}

func (r Registry) ByKind(kind Kind) []Entity {
	switch kind {
	case KindTool:
		return r.Tools
	case KindResource:
		return r.Resources
	case KindPrompt:
		return r.Prompts
	default:
		return nil
	}
}

func (r *Registry) Add(entity Entity) {
	switch entity.Kind {
	case KindTool:
		r.Tools = append(r.Tools, entity)
	case KindResource:
		r.Resources = append(r.Resources, entity)
	case KindPrompt:
		r.Prompts = append(r.Prompts, entity)
	}
}

// Find returns the first entity of kind with the given name.
func (r Registry) Find(kind Kind, name string) (Entity, bool) {
	for _, entity := range r.ByKind(kind) {
		if entity.Name == name {
			return entity, true
		}
	}
	return Entity{}, false
}

// UITool returns the named tool only when it carries an App.
func (r Registry) UITool(name string) (Entity, error) {
	entity, ok := r.Find(KindTool, name)
	if !ok {
		return Entity{}, E(CodeNotFound, "registry", "tool "+name+" not found", ErrEntityNotFound)
	}
	if !entity.HasUI {
		return Entity{}, E(CodeNotFound, "registry", "tool "+name+" has no ui", ErrNotUIBearing)
	}
	return entity, nil
}

func (r Registry) UITools() []Entity {
	out := make([]Entity, 0, len(r.Tools))
	for _, entity := range r.Tools {
		if entity.HasUI {
			out = append(out, entity)
		}
	}
	return out
}

func (r Registry) Names(kind Kind) []string {
	entities := r.ByKind(kind)
	names := make([]string, 0, len(entities))
	for _, entity := range entities {
		names = append(names, entity.Name)
	}
	return names
}

func (r Registry) Duplicates() []Duplicate {
	var out []Duplicate
	for _, kind := range []Kind{KindTool, KindResource, KindPrompt} {
		paths := make(map[string][]string)
		var order []string
		for _, entity := range r.ByKind(kind) {
			if _, seen := paths[entity.Name]; !seen {
				order = append(order, entity.Name)
			}
			paths[entity.Name] = append(paths[entity.Name], entity.RelativePath)
		}
		for _, name := range order {
			if len(paths[name]) > 1 {
				out = append(out, Duplicate{Kind: kind, Name: name, Paths: paths[name]})
			}
		}
	}
	return out
}

func (r Registry) Clone() Registry {
	return Registry{
		Tools:     append([]Entity{}, r.Tools...),
		Resources: append([]Entity{}, r.Resources...),
		Prompts:   append([]Entity{}, r.Prompts...),
	}
}
