package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bidforge/backend/internal/knowledge"
)

const devOpsProfile = "We provide cloud migration services, infrastructure management, DevOps, and monitoring solutions."

func req(id, text string) RequirementItem {
	return RequirementItem{ID: id, Section: "Auto-detected", RequirementText: text, Priority: "must", SourceReference: "sentence"}
}

func TestBuildComplianceMatrix_SharedKeywordsScoreMetOrPartial(t *testing.T) {
	rows := BuildComplianceMatrix(
		[]RequirementItem{req("REQ-001", "The contractor shall provide cloud migration services and infrastructure management")},
		devOpsProfile, nil, "", nil,
	)
	require.Len(t, rows, 1)

	assert.Contains(t, []string{"met", "partial"}, rows[0].Status)
	assert.Equal(t, "REQ-001", rows[0].RequirementID)
	assert.Contains(t, rows[0].Evidence, "(profile)")
	assert.Contains(t, rows[0].Evidence, "cloud")
}

func TestBuildComplianceMatrix_UnrelatedRequirementIsMissing(t *testing.T) {
	rows := BuildComplianceMatrix(
		[]RequirementItem{req("REQ-001", "The contractor shall provide quantum computing expertise")},
		"We run a bakery and catering business in the metro area.", nil, "", nil,
	)
	require.Len(t, rows, 1)

	assert.Equal(t, "missing", rows[0].Status)
	assert.Equal(t, "No clear support found in profile/capability/past performance context.", rows[0].Evidence)
	assert.Equal(t, "Needs SME input, artifacts, or teaming partner detail.", rows[0].Notes)
}

func TestBuildComplianceMatrix_KnowledgeChunksBoostScore(t *testing.T) {
	requirement := req("REQ-001", "The contractor shall provide cloud migration services and kubernetes orchestration")
	profile := "We offer cloud consulting." // only "cloud" overlaps

	withoutKB := BuildComplianceMatrix([]RequirementItem{requirement}, profile, nil, "", nil)
	require.Equal(t, "missing", withoutKB[0].Status)

	chunks := []knowledge.SearchResult{
		{ChunkID: "c1", ChunkText: "Our team delivers migration services and kubernetes orchestration at scale."},
	}
	withKB := BuildComplianceMatrix([]RequirementItem{requirement}, profile, nil, "", chunks)

	assert.Contains(t, []string{"met", "partial"}, withKB[0].Status)
	assert.Contains(t, withKB[0].Evidence, "profile + knowledge base")
}

func TestBuildComplianceMatrix_KnowledgeDoesNotDoubleCountProfileWords(t *testing.T) {
	requirement := req("REQ-001", "The contractor shall provide cloud migration consulting")
	profile := "cloud migration" // two overlapping words
	chunks := []knowledge.SearchResult{{ChunkID: "c1", ChunkText: "cloud migration"}}

	rows := BuildComplianceMatrix([]RequirementItem{requirement}, profile, nil, "", chunks)
	// Same two words in profile and knowledge base count once: partial, not met.
	assert.Equal(t, "partial", rows[0].Status)
	assert.Contains(t, rows[0].Evidence, "(profile)")
}

func TestBuildComplianceMatrix_PastPerformanceAndCapabilityCount(t *testing.T) {
	requirement := req("REQ-001", "The contractor shall provide cloud migration services and infrastructure management")
	rows := BuildComplianceMatrix(
		[]RequirementItem{requirement},
		"",
		[]string{"Migrated agency workloads with cloud migration tooling."},
		"Infrastructure management and managed services practice.",
		nil,
	)
	assert.Contains(t, []string{"met", "partial"}, rows[0].Status)
}

func TestKeywords(t *testing.T) {
	keys := keywords("The contractor shall provide cloud migration services and infrastructure management")
	assert.NotContains(t, keys, "shall")
	assert.NotContains(t, keys, "contractor")
	assert.NotContains(t, keys, "provide")
	assert.Contains(t, keys, "cloud")
	assert.Contains(t, keys, "migration")
	assert.LessOrEqual(t, len(keys), 12)
}

func TestKeywords_CapAtTwelve(t *testing.T) {
	long := "alpha bravo charlie delta echoes foxtrot golfs hotels indias juliet kilos limas mikes novembers"
	assert.Len(t, keywords(long), 12)
}

func TestBuildGaps(t *testing.T) {
	matrix := []ComplianceRow{
		{RequirementID: "REQ-001", Status: "met", Notes: "ok"},
		{RequirementID: "REQ-002", Status: "partial", Notes: "Add proof points, metrics, and contract-specific tailoring."},
		{RequirementID: "REQ-003", Status: "missing", Notes: "Needs SME input, artifacts, or teaming partner detail."},
	}

	gaps := BuildGaps(matrix)
	require.Len(t, gaps, 2)
	assert.True(t, strings.HasPrefix(gaps[0], "REQ-002:"))
	assert.True(t, strings.HasPrefix(gaps[1], "REQ-003:"))
}

func TestBuildGaps_AllMet(t *testing.T) {
	gaps := BuildGaps([]ComplianceRow{{RequirementID: "REQ-001", Status: "met"}})
	require.Len(t, gaps, 1)
	assert.Equal(t, "No major gaps auto-detected. Human validation still required.", gaps[0])
}
