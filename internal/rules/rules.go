// Package rules provides the mod-set legality checks the playlist queue
// delegates to (spec §1, §4.5): which ruleset ids are legal, and whether a
// required/allowed mod pair is internally consistent.
package rules

// ModLegality is the collaborator internal/playlist validates playlist
// items against.
type ModLegality interface {
	LegalRuleset(rulesetID string) bool
	ModsCompatible(requiredMods, allowedMods []string) bool
}

// incompatiblePairs lists mod ids that cannot appear together in the same
// selection regardless of ruleset (e.g. a half-time and a double-time
// variant).
var incompatiblePairs = map[string]string{
	"DT": "HT",
	"HT": "DT",
	"NC": "HT",
	"SD": "PF",
	"PF": "SD",
}

// Default is a conservative ModLegality: it accepts a fixed, known-good set
// of ruleset ids and rejects any mod selection containing a known
// incompatible pair, requiring every required mod to also be present in
// the allowed set.
type Default struct {
	legalRulesets map[string]bool
}

func NewDefault() *Default {
	return &Default{
		legalRulesets: map[string]bool{
			"osu":      true,
			"taiko":    true,
			"fruits":   true,
			"mania":    true,
			"mania_4k": true,
			"mania_7k": true,
		},
	}
}

func (d *Default) LegalRuleset(rulesetID string) bool {
	return d.legalRulesets[rulesetID]
}

func (d *Default) ModsCompatible(requiredMods, allowedMods []string) bool {
	allowedSet := make(map[string]bool, len(allowedMods))
	for _, m := range allowedMods {
		allowedSet[m] = true
	}
	for _, m := range requiredMods {
		if !allowedSet[m] {
			return false
		}
	}

	selected := make(map[string]bool, len(requiredMods)+len(allowedMods))
	for _, m := range requiredMods {
		selected[m] = true
	}
	for _, m := range allowedMods {
		selected[m] = true
	}
	for m := range selected {
		if conflict, ok := incompatiblePairs[m]; ok && selected[conflict] {
			return false
		}
	}
	return true
}
