package packs

import (
	"embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var packsFS embed.FS

// Pack is a read-only deck of questions selectable by the host.
type Pack struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Icon        string   `yaml:"icon" json:"icon"`
	Color       string   `yaml:"color" json:"color"`
	Questions   []string `yaml:"questions" json:"questions"`
}

// Library holds all packs loaded at startup.
type Library struct {
	byID map[string]*Pack
}

// Load parses every embedded pack definition. It fails loudly on malformed
// or duplicate packs so a bad deploy never serves a broken deck.
func Load() (*Library, error) {
	entries, err := packsFS.ReadDir("data")
	if err != nil {
		return nil, fmt.Errorf("reading packs dir: %w", err)
	}

	lib := &Library{byID: make(map[string]*Pack)}
	for _, entry := range entries {
		content, err := packsFS.ReadFile("data/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("reading pack %s: %w", entry.Name(), err)
		}
		var p Pack
		if err := yaml.Unmarshal(content, &p); err != nil {
			return nil, fmt.Errorf("parsing pack %s: %w", entry.Name(), err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("pack %s has no id", entry.Name())
		}
		if len(p.Questions) == 0 {
			return nil, fmt.Errorf("pack %s has no questions", p.ID)
		}
		if _, exists := lib.byID[p.ID]; exists {
			return nil, fmt.Errorf("duplicate pack id %q", p.ID)
		}
		lib.byID[p.ID] = &p
	}
	return lib, nil
}

// Get returns the pack with the given id, or nil if no such pack exists.
func (l *Library) Get(id string) *Pack {
	return l.byID[id]
}

// List returns all packs sorted by id.
func (l *Library) List() []*Pack {
	list := make([]*Pack, 0, len(l.byID))
	for _, p := range l.byID {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
