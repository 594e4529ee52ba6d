package types

// Match describes one side (positive or negative) of a scanner rule.
// Flavors/Filename/Source are evaluated independently per §4.4: any one of
// them matching is enough to satisfy this side of the rule.
type Match struct {
	// Flavors matches if any of these appears in the file's flavor set.
	// In a positive match the literal "*" matches any file (wildcard); in a
	// negative match "*" is ignored and matches nothing.
	Flavors []string `yaml:"flavors,omitempty"`
	// Filename is a regular expression evaluated against file.Name.
	Filename string `yaml:"filename,omitempty"`
	// Source is a regular expression evaluated against file.Source.
	Source string `yaml:"source,omitempty"`
}

// Empty reports whether the match has no criteria configured.
func (m *Match) Empty() bool {
	return m == nil || (len(m.Flavors) == 0 && m.Filename == "" && m.Source == "")
}

// DefaultPriority is applied to a rule that omits an explicit priority.
const DefaultPriority = 5

// Rule is one entry in a scanner's configured rule list. Rules are
// evaluated in declared order; see assign.Engine.Evaluate for the precedence of
// negative vetoes over positive matches.
type Rule struct {
	Positive *Match         `yaml:"positive,omitempty"`
	Negative *Match         `yaml:"negative,omitempty"`
	Priority int            `yaml:"priority,omitempty"`
	Options  map[string]any `yaml:"options,omitempty"`
}

// EffectivePriority returns the rule's priority, or DefaultPriority if unset.
func (r Rule) EffectivePriority() int {
	if r.Priority == 0 {
		return DefaultPriority
	}
	return r.Priority
}

// ScannerMapping is the configured rule list for one scanner, keyed by
// scanner name in the owning config document.
type ScannerMapping struct {
	Rules []Rule `yaml:"rules"`
}

// Assignment is the decision to run a specific scanner on a specific file,
// carrying the priority used for cross-scanner ordering and the scanner's
// opaque per-file options.
type Assignment struct {
	Name     string
	Priority int
	Options  map[string]any
}
