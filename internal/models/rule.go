// Package models defines the domain types for imagesorter.
package models

// Rule maps a website hostname (and its subdomains) to a vault folder.
// An empty Folder means the vault root.
type Rule struct {
	Domain string `json:"domain" yaml:"domain" toml:"domain"`
	Folder string `json:"folder" yaml:"folder" toml:"folder"`
}

// RuleSet is an ordered list of rules. Earlier rules win.
type RuleSet []Rule

// Clone returns a copy that shares no backing array with rs.
func (rs RuleSet) Clone() RuleSet {
	if rs == nil {
		return RuleSet{}
	}
	out := make(RuleSet, len(rs))
	copy(out, rs)
	return out
}
