package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Host is one managed system to capture counters for.
type Host struct {
	UUID string `yaml:"uuid"`
	Name string `yaml:"name"`
}

type hostsFile struct {
	Hosts []Host `yaml:"hosts"`
}

// LoadHostsFile reads a YAML inventory of the form:
//
//	hosts:
//	  - uuid: 3f0b...
//	    name: p10-prod
func LoadHostsFile(path string) ([]Host, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}
	var f hostsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse hosts file %s: %w", path, err)
	}
	out := make([]Host, 0, len(f.Hosts))
	for i, h := range f.Hosts {
		h.UUID = strings.TrimSpace(h.UUID)
		h.Name = strings.TrimSpace(h.Name)
		if h.UUID == "" {
			return nil, fmt.Errorf("hosts file %s: entry %d has no uuid", path, i)
		}
		out = append(out, h)
	}
	return out, nil
}

// parseHostList parses "uuid[=name],uuid[=name]".
func parseHostList(v string) []Host {
	var out []Host
	for _, item := range splitList(v) {
		uuid, name, _ := strings.Cut(item, "=")
		out = append(out, Host{UUID: strings.TrimSpace(uuid), Name: strings.TrimSpace(name)})
	}
	return out
}

// mergeHosts appends extra to base, skipping UUIDs already present. Names from
// extra fill in blanks in base.
func mergeHosts(base, extra []Host) []Host {
	idx := make(map[string]int, len(base))
	out := append([]Host(nil), base...)
	for i, h := range out {
		idx[h.UUID] = i
	}
	for _, h := range extra {
		if i, ok := idx[h.UUID]; ok {
			if out[i].Name == "" {
				out[i].Name = h.Name
			}
			continue
		}
		idx[h.UUID] = len(out)
		out = append(out, h)
	}
	return out
}
