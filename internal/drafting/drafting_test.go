package drafting

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidforge/backend/internal/analysis"
	"github.com/bidforge/backend/internal/llm"
	"github.com/bidforge/backend/internal/ratelimit"
)

type stubCompleter struct {
	output string
	err    error
	calls  int
}

func (s *stubCompleter) Complete(_ context.Context, _ []llm.Message, _ float32) (string, error) {
	s.calls++
	return s.output, s.err
}

func sampleInput() Input {
	return Input{
		Metadata: analysis.Metadata{
			SolicitationNumber: "W91CRB-24-R-0042",
			DueDate:            "October 15, 2026",
			NAICS:              "541512",
			PSC:                "D302",
		},
		Requirements: []analysis.RequirementItem{
			{ID: "REQ-001", RequirementText: "The contractor shall provide cloud migration services."},
			{ID: "REQ-002", RequirementText: "The vendor must maintain 99.9 percent availability."},
		},
		Matrix: []analysis.ComplianceRow{
			{RequirementID: "REQ-001", Status: "met"},
			{RequirementID: "REQ-002", Status: "partial"},
		},
		CompanyName:     "Acme Federal",
		CompanyProfile:  "We provide cloud migration services and infrastructure management.",
		PastPerformance: []string{"Agency X cloud migration, 2024"},
	}
}

const wellFormedDraft = `## executive_summary
Acme Federal brings proven cloud migration delivery.

## technical_approach
Phased migration with traceability.

## past_performance
Agency X cloud migration, 2024.

## management_plan
PM, tech lead, compliance reviewer.`

func TestGenerate_UsesLLMOutput(t *testing.T) {
	completer := &stubCompleter{output: wellFormedDraft}
	sections := Generate(context.Background(), completer, sampleInput())

	assert.Equal(t, 1, completer.calls)
	assert.Equal(t, "Acme Federal brings proven cloud migration delivery.", sections["executive_summary"])
	assert.Equal(t, "Phased migration with traceability.", sections["technical_approach"])
	assert.Contains(t, sections["company_profile_reference"], "cloud migration services")
}

func TestGenerate_FallsBackOnError(t *testing.T) {
	completer := &stubCompleter{err: ratelimit.ErrRateLimited}
	sections := Generate(context.Background(), completer, sampleInput())

	assert.Contains(t, sections["executive_summary"], "human review required")
	assert.Contains(t, sections["executive_summary"], "W91CRB-24-R-0042")
	assert.Contains(t, sections["executive_summary"], "met=1, partial=1, missing=0")
}

func TestGenerate_FallsBackOnMissingSections(t *testing.T) {
	completer := &stubCompleter{output: "Here is a draft without any headers at all."}
	sections := Generate(context.Background(), completer, sampleInput())

	assert.Contains(t, sections["executive_summary"], "This package addresses 2 identified requirements")
}

func TestGenerate_NilCompleterUsesFallback(t *testing.T) {
	sections := Generate(context.Background(), nil, sampleInput())

	for _, key := range SectionKeys {
		assert.NotEmpty(t, sections[key], "section %s", key)
	}
	assert.Contains(t, sections["past_performance"], "Agency X cloud migration, 2024")
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt(sampleInput())

	assert.Contains(t, prompt, "Company Name: Acme Federal")
	assert.Contains(t, prompt, "solicitation_number=W91CRB-24-R-0042")
	assert.Contains(t, prompt, "- REQ-001: The contractor shall provide cloud migration services.")
	assert.Contains(t, prompt, "- REQ-002: partial")
	assert.Contains(t, prompt, "## management_plan")
}

func TestBuildPrompt_BoundsPreviews(t *testing.T) {
	in := sampleInput()
	in.Requirements = nil
	in.Matrix = nil
	for i := 0; i < 60; i++ {
		in.Requirements = append(in.Requirements, analysis.RequirementItem{
			ID:              "REQ-0" + string(rune('A'+i%26)),
			RequirementText: "The contractor shall deliver item number " + strings.Repeat("x", i),
		})
	}
	in.CompanyProfile = strings.Repeat("p", 9000)

	prompt := BuildPrompt(in)
	assert.Equal(t, 40, strings.Count(prompt, "- REQ-0"))
	assert.NotContains(t, prompt, strings.Repeat("p", 5001))
}

func TestSplitSections(t *testing.T) {
	sections := SplitSections(wellFormedDraft)

	require.Len(t, sections, 4)
	assert.Equal(t, "PM, tech lead, compliance reviewer.", sections["management_plan"])
}

func TestSplitSections_HeaderVariants(t *testing.T) {
	sections := SplitSections("## Executive Summary\nIntro text.\n##technical_approach\nPlan.")

	assert.Equal(t, "Intro text.", sections["executive_summary"])
	assert.Equal(t, "Plan.", sections["technical_approach"])
}

func TestSplitSections_TextBeforeFirstHeaderDropped(t *testing.T) {
	sections := SplitSections("Preamble chatter.\n## executive_summary\nReal content.")

	assert.Equal(t, "Real content.", sections["executive_summary"])
	for _, text := range sections {
		assert.NotContains(t, text, "Preamble")
	}
}

func TestFallbackSections_NoPastPerformance(t *testing.T) {
	in := sampleInput()
	in.PastPerformance = nil

	sections := FallbackSections(in)
	assert.Contains(t, sections["past_performance"], "Add comparable project references.")
}
