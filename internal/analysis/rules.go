package analysis

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rules describes how fields are pulled out of document text.
type Rules struct {
	Ranks   []string             `yaml:"ranks"`
	Service ServiceRules         `yaml:"service"`
	Fields  map[string]FieldRule `yaml:"fields"`
}

// ServiceRules lists the lowercase markers that decide the service type.
// Mobilization markers are checked first.
type ServiceRules struct {
	MobilizationMarkers []string `yaml:"mobilization_markers"`
	ContractMarkers     []string `yaml:"contract_markers"`
}

// FieldRule extracts one record field. The first pattern that matches wins
// and its first capture group is the value.
type FieldRule struct {
	Patterns  []string `yaml:"patterns"`
	MaxLength int      `yaml:"max_length,omitempty"`
	Date      bool     `yaml:"date,omitempty"`
	// Service restricts the field to documents of that service type.
	Service string `yaml:"service,omitempty"`
}

// DefaultRules returns a fresh copy of the built-in rules.
func DefaultRules() *Rules {
	r, err := ParseRules(defaultRulesYAML)
	if err != nil {
		panic(fmt.Sprintf("analysis: built-in rules: %v", err))
	}
	return r
}

// ParseRules decodes a rules document.
func ParseRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return &r, nil
}

// LoadRules reads the rules file at path and overlays it on the defaults.
// A missing file yields the defaults unchanged.
func LoadRules(path string) (*Rules, error) {
	base := DefaultRules()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, err
	}
	override, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base.Merge(override)
	return base, nil
}

// Merge copies every section set in o over r. Fields are replaced per key.
func (r *Rules) Merge(o *Rules) {
	if len(o.Ranks) > 0 {
		r.Ranks = o.Ranks
	}
	if len(o.Service.MobilizationMarkers) > 0 {
		r.Service.MobilizationMarkers = o.Service.MobilizationMarkers
	}
	if len(o.Service.ContractMarkers) > 0 {
		r.Service.ContractMarkers = o.Service.ContractMarkers
	}
	if r.Fields == nil {
		r.Fields = make(map[string]FieldRule, len(o.Fields))
	}
	for name, f := range o.Fields {
		r.Fields[name] = f
	}
}

// ranksLongestFirst orders ranks so that "старший сержант" is tried before "сержант".
func ranksLongestFirst(ranks []string) []string {
	out := append([]string(nil), ranks...)
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i]) > utf8.RuneCountInString(out[j])
	})
	return out
}
