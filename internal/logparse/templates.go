package logparse

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Templates holds the line templates configured for each event kind.
type Templates map[EventKind][]string

// DefaultTemplates cover the stock client log lines.
func DefaultTemplates() Templates {
	return Templates{
		EventKill: {
			"[{timestamp}] {npc} has been slain by {killer}!",
			"[{timestamp}] You have slain {npc}!",
		},
		EventLoot: {
			"[{timestamp}] --{looter} has looted {item} from {npc}'s corpse.--",
			"[{timestamp}] --{looter} have looted {item} from {npc}'s corpse.--",
		},
		EventZone: {
			"[{timestamp}] You have entered {zone}.",
		},
	}
}

// merge overlays o onto t per kind; a kind present in o replaces t's list.
func (t Templates) merge(o Templates) Templates {
	out := make(Templates, len(t))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range o {
		out[k] = v
	}
	return out
}

// templateFile is the on-disk shape of PATTERNS_FILE.
type templateFile struct {
	Defaults Templates           `yaml:"defaults"`
	Guilds   map[int64]Templates `yaml:"guilds"`
}

// Registry hands out one compiled Extractor per guild, compiled on first use.
type Registry struct {
	mu       sync.Mutex
	defaults Templates
	guilds   map[int64]Templates
	location *time.Location
	compiled map[int64]*Extractor
}

// NewRegistry builds a registry from the stock templates plus per-guild overrides.
func NewRegistry(defaults Templates, guilds map[int64]Templates, loc *time.Location) *Registry {
	if defaults == nil {
		defaults = DefaultTemplates()
	}
	if guilds == nil {
		guilds = map[int64]Templates{}
	}
	return &Registry{
		defaults: defaults,
		guilds:   guilds,
		location: loc,
		compiled: make(map[int64]*Extractor),
	}
}

// LoadRegistry reads a YAML template file. An empty path yields the stock templates.
func LoadRegistry(path string, loc *time.Location) (*Registry, error) {
	if path == "" {
		return NewRegistry(nil, nil, loc), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns file: %w", err)
	}
	var f templateFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse patterns file %s: %w", path, err)
	}
	return NewRegistry(DefaultTemplates().merge(f.Defaults), f.Guilds, loc), nil
}

// ForGuild returns the guild's extractor, compiling and caching it on first use.
func (r *Registry) ForGuild(guildID int64) (*Extractor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if x, ok := r.compiled[guildID]; ok {
		return x, nil
	}
	x, err := NewExtractor(r.defaults.merge(r.guilds[guildID]), r.location)
	if err != nil {
		return nil, fmt.Errorf("guild %d: %w", guildID, err)
	}
	r.compiled[guildID] = x
	return x, nil
}
