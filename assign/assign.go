// Package assign implements the scanner assignment engine (C4): given a
// scanner's configured rule list and a file's flavors/name/source, decide
// whether that scanner runs on the file, at what priority, and with what
// options.
package assign

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/pithecene-io/triage/types"
)

// wildcardFlavor matches any file when present in a positive match.
const wildcardFlavor = "*"

type compiledMatch struct {
	flavors  map[string]bool
	wildcard bool
	filename *regexp.Regexp
	source   *regexp.Regexp
}

func compileMatch(m *types.Match) (*compiledMatch, error) {
	if m.Empty() {
		return nil, nil
	}

	cm := &compiledMatch{flavors: make(map[string]bool, len(m.Flavors))}
	for _, f := range m.Flavors {
		if f == wildcardFlavor {
			cm.wildcard = true
			continue
		}
		cm.flavors[f] = true
	}

	if m.Filename != "" {
		re, err := regexp.Compile(m.Filename)
		if err != nil {
			return nil, fmt.Errorf("invalid filename pattern %q: %w", m.Filename, err)
		}
		cm.filename = re
	}
	if m.Source != "" {
		re, err := regexp.Compile(m.Source)
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %q: %w", m.Source, err)
		}
		cm.source = re
	}
	return cm, nil
}

// anyFlavorPresent reports whether any of cm's flavors appears in flavors.
func (cm *compiledMatch) anyFlavorPresent(flavors []string) bool {
	for _, f := range flavors {
		if cm.flavors[f] {
			return true
		}
	}
	return false
}

func (cm *compiledMatch) matchesNegative(file *types.File, flavors []string) bool {
	if cm == nil {
		return false
	}
	if cm.anyFlavorPresent(flavors) {
		return true
	}
	if cm.filename != nil && cm.filename.MatchString(file.Name) {
		return true
	}
	if cm.source != nil && cm.source.MatchString(file.Source) {
		return true
	}
	return false
}

func (cm *compiledMatch) matchesPositive(file *types.File, flavors []string) bool {
	if cm == nil {
		return false
	}
	if cm.wildcard || cm.anyFlavorPresent(flavors) {
		return true
	}
	if cm.filename != nil && cm.filename.MatchString(file.Name) {
		return true
	}
	if cm.source != nil && cm.source.MatchString(file.Source) {
		return true
	}
	return false
}

type compiledRule struct {
	negative *compiledMatch
	positive *compiledMatch
	priority int
	options  map[string]any
}

// Engine holds the compiled rule list for every configured scanner.
// Regexes are compiled once at construction so a malformed pattern fails
// fast at bootstrap rather than on the first file that reaches it.
type Engine struct {
	scanners map[string][]compiledRule
}

// NewEngine compiles the given scanner-name-to-mapping configuration.
func NewEngine(mappings map[string]types.ScannerMapping) (*Engine, error) {
	e := &Engine{scanners: make(map[string][]compiledRule, len(mappings))}

	for name, mapping := range mappings {
		rules := make([]compiledRule, 0, len(mapping.Rules))
		for i, rule := range mapping.Rules {
			neg, err := compileMatch(rule.Negative)
			if err != nil {
				return nil, fmt.Errorf("scanner %q rule %d: %w", name, i, err)
			}
			pos, err := compileMatch(rule.Positive)
			if err != nil {
				return nil, fmt.Errorf("scanner %q rule %d: %w", name, i, err)
			}
			rules = append(rules, compiledRule{
				negative: neg,
				positive: pos,
				priority: rule.EffectivePriority(),
				options:  rule.Options,
			})
		}
		e.scanners[name] = rules
	}

	return e, nil
}

// Evaluate decides whether scanner `name` is assigned to file, evaluating
// its rules in configured order. A negative match at any rule vetoes the
// scanner entirely, short-circuiting remaining rules; a positive miss only
// advances to the next rule. This asymmetry is load-bearing: see §4.4.
func (e *Engine) Evaluate(name string, file *types.File) (types.Assignment, bool) {
	rules, ok := e.scanners[name]
	if !ok {
		return types.Assignment{}, false
	}

	flavors := file.Flavors.Union()

	for _, rule := range rules {
		if rule.negative.matchesNegative(file, flavors) {
			return types.Assignment{}, false
		}
		if rule.positive.matchesPositive(file, flavors) {
			return types.Assignment{
				Name:     name,
				Priority: rule.priority,
				Options:  rule.options,
			}, true
		}
	}

	return types.Assignment{}, false
}

// AssignAll evaluates every scanner name in names against file and returns
// the assigned subset, sorted by priority descending with ties broken by
// the order names were given (stable sort preserves configured order).
func (e *Engine) AssignAll(names []string, file *types.File) []types.Assignment {
	assignments := make([]types.Assignment, 0, len(names))
	for _, name := range names {
		if a, ok := e.Evaluate(name, file); ok {
			assignments = append(assignments, a)
		}
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		return assignments[i].Priority > assignments[j].Priority
	})

	return assignments
}
