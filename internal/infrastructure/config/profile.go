package config

import (
	"fmt"
	"os"

	"github.com/GriffinCanCode/kioskhelper/internal/shared/types"
	"github.com/goccy/go-yaml"
)

// Profile is the optional per-deployment kiosk profile:
//
//	defaults:
//	  mode: apply
//	  allowlist: [com.example.a]
//	  features: 0
//	  suppressStatusBar: true
//	  dndMode: total
//	targets:
//	  org.thoughtcrime.securesms:
//	    alternates: [.RoutingActivity, .MainActivity]
type Profile struct {
	Defaults ProfileDefaults          `yaml:"defaults"`
	Targets  map[string]ProfileTarget `yaml:"targets"`
}

// ProfileDefaults override the transport defaults of a command
type ProfileDefaults struct {
	Mode              string   `yaml:"mode"`
	Allowlist         []string `yaml:"allowlist"`
	Features          *uint32  `yaml:"features"`
	SuppressStatusBar *bool    `yaml:"suppressStatusBar"`
	DNDMode           string   `yaml:"dndMode"`
}

// ProfileTarget holds settings for one target package
type ProfileTarget struct {
	Alternates []string `yaml:"alternates"`
}

// LoadProfile reads and validates a profile file
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a profile document. Unknown keys are rejected.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.UnmarshalWithOptions(data, &p, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Profile) validate() error {
	for _, pkg := range p.Defaults.Allowlist {
		if !types.ValidPackageName(pkg) {
			return fmt.Errorf("profile allowlist: invalid package %q", pkg)
		}
	}
	if p.Defaults.DNDMode != "" {
		if _, err := types.ParseDNDMode(p.Defaults.DNDMode); err != nil {
			return fmt.Errorf("profile defaults: %w", err)
		}
	}
	switch types.CommandMode(p.Defaults.Mode) {
	case "", types.ModePrepare, types.ModeApply:
	default:
		return fmt.Errorf("profile defaults: unknown mode %q", p.Defaults.Mode)
	}
	if p.Defaults.Features != nil && !types.Features(*p.Defaults.Features).Valid() {
		return fmt.Errorf("profile defaults: unknown feature bits in %#x", *p.Defaults.Features)
	}
	for pkg, target := range p.Targets {
		if !types.ValidPackageName(pkg) {
			return fmt.Errorf("profile targets: invalid package %q", pkg)
		}
		for _, class := range target.Alternates {
			if !types.NewComponent(pkg, class).Valid() {
				return fmt.Errorf("profile targets: invalid alternate %q for %s", class, pkg)
			}
		}
	}
	return nil
}

// Alternates returns the alternate entry points per target, or nil when the
// profile names none
func (p *Profile) Alternates() map[string][]string {
	if p == nil || len(p.Targets) == 0 {
		return nil
	}
	out := make(map[string][]string, len(p.Targets))
	for pkg, target := range p.Targets {
		out[pkg] = append([]string(nil), target.Alternates...)
	}
	return out
}

// CommandDefaults merges the profile defaults over base
func (p *Profile) CommandDefaults(base types.CommandDefaults) types.CommandDefaults {
	if p == nil {
		return base
	}
	d := p.Defaults
	if d.Mode != "" {
		base.Mode = types.CommandMode(d.Mode)
	}
	if d.Allowlist != nil {
		base.Allowlist = append([]string(nil), d.Allowlist...)
	}
	if d.Features != nil {
		base.Features = types.Features(*d.Features)
	}
	if d.SuppressStatusBar != nil {
		base.SuppressStatusBar = *d.SuppressStatusBar
	}
	if d.DNDMode != "" {
		mode, _ := types.ParseDNDMode(d.DNDMode)
		base.DNDMode = mode
	}
	return base
}
