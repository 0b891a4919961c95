package roles

import (
	"errors"
	"sort"
)

const DefaultKey = "default"

var ErrMissingDefault = errors.New(`role registry requires a "default" role`)

type Role struct {
	Prompt string
	Label  string
}

type Entry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Registry is immutable after construction and safe for concurrent reads.
type Registry struct {
	roles   map[string]Role
	entries []Entry
}

func Defaults() map[string]Role {
	return map[string]Role{
		DefaultKey: {
			Prompt: "You are a friendly assistant.",
			Label:  "🤖 Friendly Assistant",
		},
		"guru": {
			Prompt: "You are a patient teacher who likes to explain concepts clearly.",
			Label:  "📘 Teacher",
		},
		"dokter": {
			Prompt: "You are a professional doctor who gives general medical advice (not a diagnosis).",
			Label:  "🩺 Doctor",
		},
		"teman": {
			Prompt: "You are a close friend who listens and is supportive.",
			Label:  "🧑‍🤝‍🧑 Friend",
		},
		"ahli_it": {
			Prompt: "You are an IT expert who answers technical questions in detail.",
			Label:  "💻 IT Expert",
		},
	}
}

func NewRegistry(set map[string]Role) (*Registry, error) {
	if _, ok := set[DefaultKey]; !ok {
		return nil, ErrMissingDefault
	}
	r := &Registry{roles: make(map[string]Role, len(set))}
	for key, role := range set {
		if role.Label == "" {
			role.Label = key
		}
		r.roles[key] = role
		r.entries = append(r.entries, Entry{Key: key, Label: role.Label})
	}
	sort.Slice(r.entries, func(i, j int) bool {
		a, b := r.entries[i].Key, r.entries[j].Key
		if a == DefaultKey || b == DefaultKey {
			return a == DefaultKey
		}
		return a < b
	})
	return r, nil
}

// Resolve falls back to the default role for unknown keys.
func (r *Registry) Resolve(key string) Role {
	if role, ok := r.roles[key]; ok {
		return role
	}
	return r.roles[DefaultKey]
}

func (r *Registry) Has(key string) bool {
	_, ok := r.roles[key]
	return ok
}

func (r *Registry) List() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
