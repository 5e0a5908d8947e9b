package analysis

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRFP = `REQUEST FOR PROPOSAL

Solicitation Number: W91CRB-24-R-0042
NAICS: 541512
PSC: D302
Due Date: October 15, 2026

SECTION C - STATEMENT OF WORK

The contractor shall provide cloud migration services and infrastructure management for all agency systems. The vendor must maintain 99.9 percent availability across the hosting environment. Offerors are encouraged to describe innovations. The offeror is required to submit past performance references covering the last three years.

Short line.

The government will evaluate proposals on a best-value basis.`

func TestExtractMetadata(t *testing.T) {
	meta := ExtractMetadata(sampleRFP)

	assert.Equal(t, "W91CRB-24-R-0042", meta.SolicitationNumber)
	assert.Equal(t, "541512", meta.NAICS)
	assert.Equal(t, "D302", meta.PSC)
	assert.Equal(t, "October 15, 2026", meta.DueDate)
}

func TestExtractMetadata_MissingFields(t *testing.T) {
	meta := ExtractMetadata("A plain document with no procurement codes in it.")

	assert.Equal(t, "Not found", meta.SolicitationNumber)
	assert.Equal(t, "Not found", meta.NAICS)
	assert.Equal(t, "Not found", meta.PSC)
	assert.Equal(t, "Not found", meta.DueDate)
}

func TestExtractMetadata_RFPNumberVariant(t *testing.T) {
	meta := ExtractMetadata("RFP No. GS-35F-0119Y for IT services")
	assert.Equal(t, "GS-35F-0119Y", meta.SolicitationNumber)
}

func TestExtractRequirements(t *testing.T) {
	reqs := ExtractRequirements(sampleRFP)
	require.NotEmpty(t, reqs)

	// Sequential REQ-NNN ids.
	for i, r := range reqs {
		assert.Equal(t, fmt.Sprintf("REQ-%03d", i+1), r.ID)
		assert.Equal(t, "Auto-detected", r.Section)
		assert.Equal(t, "sentence", r.SourceReference)
		assert.GreaterOrEqual(t, len(r.RequirementText), 30)
	}

	texts := make([]string, len(reqs))
	for i, r := range reqs {
		texts[i] = r.RequirementText
	}
	joined := strings.Join(texts, " | ")
	assert.Contains(t, joined, "cloud migration services")
	assert.Contains(t, joined, "99.9 percent availability")
	assert.NotContains(t, joined, "Short line")
}

func TestExtractRequirements_Priority(t *testing.T) {
	reqs := ExtractRequirements(
		"The contractor shall provide cloud migration services for the agency. " +
			"The vendor will provide training material for administrators and end users.")
	require.Len(t, reqs, 2)

	assert.Equal(t, "must", reqs[0].Priority)
	assert.Equal(t, "should", reqs[1].Priority)
}

func TestExtractRequirements_NoMatchesYieldsPlaceholder(t *testing.T) {
	reqs := ExtractRequirements("A short, friendly document about nothing in particular at all really.")
	require.Len(t, reqs, 1)

	r := reqs[0]
	assert.Equal(t, "REQ-001", r.ID)
	assert.Equal(t, "General", r.Section)
	assert.Equal(t, "informational", r.Priority)
	assert.Equal(t, "full_text", r.SourceReference)
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("The contractor shall deliver. The vendor must comply! Is that clear? 42 days remain.")
	require.Len(t, sentences, 4)
	assert.Equal(t, "The contractor shall deliver.", sentences[0])
	assert.Equal(t, "The vendor must comply!", sentences[1])
	assert.Equal(t, "Is that clear?", sentences[2])
	assert.Equal(t, "42 days remain.", sentences[3])
}

func TestSplitSentences_NoBreakOnLowercaseOrAbbrev(t *testing.T) {
	sentences := splitSentences("The ceiling is approx. three million dollars. The vendor must comply.")
	require.Len(t, sentences, 2)
	assert.Equal(t, "The ceiling is approx. three million dollars.", sentences[0])
}
