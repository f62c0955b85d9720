package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/stbuild/internal/model"
)

// profileFile is the layout of a profiles YAML file:
//
//	profiles:
//	  compile:
//	    memory: 2m
//	  falcon:
//	    machine: falcon
//	    tos: tos206
//	    video: low
//	    memory: 4m
type profileFile struct {
	Profiles map[string]yaml.Node `yaml:"profiles"`
}

// LoadProfiles returns the built-in profiles overlaid with the ones in the
// YAML file at path. An entry named after a built-in profile only overrides
// the fields it sets. An empty path returns the built-ins.
func LoadProfiles(path string) (map[string]model.MachineProfile, error) {
	profiles := model.DefaultProfiles()
	if path == "" {
		return profiles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data, profiles)
}

// ParseProfiles overlays the YAML document data onto base, which it
// modifies and returns.
func ParseProfiles(data []byte, base map[string]model.MachineProfile) (map[string]model.MachineProfile, error) {
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	for name, node := range f.Profiles {
		p := base[name]
		if err := node.Decode(&p); err != nil {
			return nil, fmt.Errorf("profile %q: %w", name, err)
		}
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		base[name] = p
	}
	return base, nil
}
