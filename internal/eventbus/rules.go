package eventbus

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	pstrings "eda/pkg/platform/strings"
)

// Pattern matches events by exact equality on both fields.
type Pattern struct {
	Source     string `yaml:"source"`
	DetailType string `yaml:"detail_type"`
}

func (p Pattern) matches(source, detailType string) bool {
	return p.Source == source && p.DetailType == detailType
}

// Rule sends events matching Pattern to every target id in Targets.
type Rule struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Pattern     Pattern  `yaml:"event_pattern"`
	Targets     []string `yaml:"targets"`
}

// Binding is one (rule, target) pair selected for an event.
type Binding struct {
	Rule   string
	Target string
}

// RuleSet is an immutable, validated rule table.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet validates rules and copies them. Targets are trimmed and
// deduplicated per rule; duplicate rule names are rejected.
func NewRuleSet(rules ...Rule) (*RuleSet, error) {
	var errs []error
	seen := make(map[string]struct{}, len(rules))
	out := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		if rule.Name == "" {
			errs = append(errs, fmt.Errorf("rule %d: name is required", i))
			continue
		}
		if _, dup := seen[rule.Name]; dup {
			errs = append(errs, fmt.Errorf("rule %q: duplicate name", rule.Name))
			continue
		}
		seen[rule.Name] = struct{}{}
		if rule.Pattern.Source == "" || rule.Pattern.DetailType == "" {
			errs = append(errs, fmt.Errorf("rule %q: event_pattern needs source and detail_type", rule.Name))
		}
		rule.Targets = pstrings.DedupeAndTrim(append([]string(nil), rule.Targets...))
		if len(rule.Targets) == 0 {
			errs = append(errs, fmt.Errorf("rule %q: at least one target is required", rule.Name))
		}
		out = append(out, rule)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid routing rules: %w", err)
	}
	return &RuleSet{rules: out}, nil
}

// Match returns a binding for every target of every rule whose pattern
// equals source and detailType. A target listed by two rules appears twice.
func (s *RuleSet) Match(source, detailType string) []Binding {
	var bindings []Binding
	for _, rule := range s.rules {
		if !rule.Pattern.matches(source, detailType) {
			continue
		}
		for _, target := range rule.Targets {
			bindings = append(bindings, Binding{Rule: rule.Name, Target: target})
		}
	}
	return bindings
}

// Rules returns a copy of the rule table.
func (s *RuleSet) Rules() []Rule {
	out := make([]Rule, len(s.rules))
	for i, rule := range s.rules {
		rule.Targets = append([]string(nil), rule.Targets...)
		out[i] = rule
	}
	return out
}

// Targets returns every distinct target id referenced by the rules.
func (s *RuleSet) Targets() []string {
	var all []string
	for _, rule := range s.rules {
		all = append(all, rule.Targets...)
	}
	return pstrings.DedupeAndTrim(all)
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules reads a YAML document with a top-level "rules" list.
func ParseRules(data []byte) (*RuleSet, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	if len(file.Rules) == 0 {
		return nil, errors.New("parse routing rules: no rules defined")
	}
	return NewRuleSet(file.Rules...)
}

// LoadRules reads and parses a rules file.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routing rules: %w", err)
	}
	return ParseRules(data)
}
