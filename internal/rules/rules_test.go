package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLegalRuleset(t *testing.T) {
	d := NewDefault()
	assert.True(t, d.LegalRuleset("osu"))
	assert.True(t, d.LegalRuleset("mania_4k"))
	assert.False(t, d.LegalRuleset("unknown_ruleset"))
}

func TestDefaultModsCompatibleRequiresSubset(t *testing.T) {
	d := NewDefault()
	assert.True(t, d.ModsCompatible([]string{"HD"}, []string{"HD", "HR"}))
	assert.False(t, d.ModsCompatible([]string{"HD"}, []string{"HR"}))
}

func TestDefaultModsCompatibleRejectsKnownConflicts(t *testing.T) {
	d := NewDefault()
	assert.False(t, d.ModsCompatible([]string{"DT"}, []string{"DT", "HT"}))
	assert.False(t, d.ModsCompatible(nil, []string{"SD", "PF"}))
}

func TestDefaultModsCompatibleEmptySelection(t *testing.T) {
	d := NewDefault()
	assert.True(t, d.ModsCompatible(nil, nil))
}
