package rules

import (
	"testing"

	"github.com/roach88/shadowai/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_LongestMatchWins(t *testing.T) {
	rs := []Rule{
		{ID: "generic-openai", HostPattern: "*.openai.com", ServiceName: "OpenAI (generic)"},
		{ID: "openai-chat", HostPattern: "api.openai.com", PathPattern: "/v1/chat/completions", ServiceName: "OpenAI ChatGPT"},
	}
	sig := ir.Signature{NormalizedHost: "api.openai.com", PathTemplate: "/v1/chat/completions"}

	got, matched := Classify(sig, "openai.com", rs, nil)
	require.True(t, matched)
	assert.Equal(t, "OpenAI ChatGPT", got.ServiceName)
}

func TestClassify_TieBreaksOnPriorityThenOrder(t *testing.T) {
	rs := []Rule{
		{ID: "a", HostPattern: "*.example.com", Priority: 1, ServiceName: "A"},
		{ID: "b", HostPattern: "*.example.com", Priority: 5, ServiceName: "B"},
		{ID: "c", HostPattern: "*.example.com", Priority: 5, ServiceName: "C"},
	}
	sig := ir.Signature{NormalizedHost: "sub.example.com"}

	got, matched := Classify(sig, "example.com", rs, nil)
	require.True(t, matched)
	assert.Equal(t, "B", got.ServiceName, "highest priority wins; stable order breaks the remaining tie")
}

func TestClassify_NoMatch(t *testing.T) {
	rs := []Rule{{ID: "a", HostPattern: "*.openai.com", ServiceName: "OpenAI"}}
	sig := ir.Signature{NormalizedHost: "example.com"}

	_, matched := Classify(sig, "example.com", rs, nil)
	assert.False(t, matched)
}

func TestClassify_FallbackFillsUnspecifiedDimensions(t *testing.T) {
	rs := []Rule{{
		ID:          "a",
		HostPattern: "*.openai.com",
		ServiceName: "OpenAI",
		Taxonomy:    ir.TaxonomyAssignment{FunctionalScope: []string{"coding-assistant"}},
	}}
	sig := ir.Signature{NormalizedHost: "api.openai.com"}

	fallback := map[ir.TaxonomyDimension]string{
		ir.DimDataType:     "unclassified",
		ir.DimRiskSurface:  "unknown",
		ir.DimChannel:      "unknown",
		ir.DimLogEventType: "unknown",
	}

	got, matched := Classify(sig, "openai.com", rs, fallback)
	require.True(t, matched)
	assert.Equal(t, []string{"coding-assistant"}, got.Taxonomy.FunctionalScope)
	assert.Equal(t, []string{"unclassified"}, got.Taxonomy.DataType)
	assert.Equal(t, []string{"unknown"}, got.Taxonomy.RiskSurface)
	assert.Empty(t, got.Taxonomy.OutcomeBenefit, "no fallback configured for outcome_benefit, stays empty")
}

func TestMatchGlob_EmptyPatternMatchesAnything(t *testing.T) {
	assert.True(t, matchGlob("", "anything.example.com"))
}

func TestMatchGlob_WildcardSuffix(t *testing.T) {
	assert.True(t, matchGlob("*.openai.com", "api.openai.com"))
	assert.False(t, matchGlob("*.openai.com", "openai.com"))
}
