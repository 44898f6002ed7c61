// Package plugin models sidekick plugin descriptors and the configuration
// document that lists them, and merges a desired set of descriptors into
// that document without disturbing anything else in it.
package plugin

import (
	"errors"
	"fmt"
	"slices"
)

// Environment is a deployment stage a plugin is shown in.
type Environment string

const (
	EnvDev     Environment = "dev"
	EnvEdit    Environment = "edit"
	EnvAdmin   Environment = "admin"
	EnvPreview Environment = "preview"
	EnvLive    Environment = "live"
	EnvProd    Environment = "prod"
)

// AllEnvironments lists every known environment in canonical order.
var AllEnvironments = []Environment{EnvDev, EnvEdit, EnvAdmin, EnvPreview, EnvLive, EnvProd}

// Known reports whether e is one of AllEnvironments.
func (e Environment) Known() bool {
	for _, k := range AllEnvironments {
		if e == k {
			return true
		}
	}
	return false
}

// Descriptor is one entry of the plugins list. Field order is the JSON
// output order.
type Descriptor struct {
	ID           string        `json:"id" yaml:"id"`
	Title        string        `json:"title" yaml:"title"`
	Environments []Environment `json:"environments" yaml:"environments"`
	Event        string        `json:"event" yaml:"event"`
}

// Experimentation is the A/B testing plugin the sync command ensures by
// default.
var Experimentation = Descriptor{
	ID:           "experimentation",
	Title:        "A/B Testing",
	Environments: slices.Clone(AllEnvironments),
	Event:        "experimentation",
}

// Validate checks the id is set and every environment is known and listed
// once.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.New("plugin: descriptor id is empty")
	}
	seen := make(map[Environment]bool, len(d.Environments))
	for _, e := range d.Environments {
		if !e.Known() {
			return fmt.Errorf("plugin %q: unknown environment %q", d.ID, e)
		}
		if seen[e] {
			return fmt.Errorf("plugin %q: environment %q listed twice", d.ID, e)
		}
		seen[e] = true
	}
	return nil
}

// ValidateAll validates each descriptor and rejects duplicate ids.
func ValidateAll(ds []Descriptor) error {
	ids := make(map[string]bool, len(ds))
	for _, d := range ds {
		if err := d.Validate(); err != nil {
			return err
		}
		if ids[d.ID] {
			return fmt.Errorf("plugin %q: listed twice", d.ID)
		}
		ids[d.ID] = true
	}
	return nil
}
