package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bidforge/backend/internal/knowledge"
)

var stopwords = map[string]struct{}{
	"shall":      {},
	"must":       {},
	"required":   {},
	"offeror":    {},
	"contractor": {},
	"vendor":     {},
	"provide":    {},
	"response":   {},
	"proposal":   {},
	"agency":     {},
	"government": {},
	"federal":    {},
}

var keywordRE = regexp.MustCompile(`[a-z0-9\-]{4,}`)

func normalize(text string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(strings.ToLower(text), " "))
}

// keywords pulls up to 12 content words from a requirement, in first-seen
// order, dropping boilerplate procurement terms.
func keywords(text string) []string {
	words := keywordRE.FindAllString(normalize(text), -1)
	out := make([]string, 0, 12)
	for _, w := range words {
		if _, skip := stopwords[w]; skip {
			continue
		}
		out = append(out, w)
		if len(out) == 12 {
			break
		}
	}
	return out
}

func profileCorpus(companyProfile string, pastPerformance []string, capabilityStatement string) string {
	return normalize(companyProfile + "\n" + strings.Join(pastPerformance, "\n") + "\n" + capabilityStatement)
}

// BuildComplianceMatrix scores each requirement by keyword overlap with
// the org's profile text, boosted by retrieved knowledge chunks when
// available. Knowledge hits only count for words the profile missed.
func BuildComplianceMatrix(
	requirements []RequirementItem,
	companyProfile string,
	pastPerformance []string,
	capabilityStatement string,
	knowledgeChunks []knowledge.SearchResult,
) []ComplianceRow {
	corpus := profileCorpus(companyProfile, pastPerformance, capabilityStatement)

	var knowledgeText string
	if len(knowledgeChunks) > 0 {
		texts := make([]string, len(knowledgeChunks))
		for i, c := range knowledgeChunks {
			texts[i] = c.ChunkText
		}
		knowledgeText = normalize(strings.Join(texts, " "))
	}

	matrix := make([]ComplianceRow, 0, len(requirements))

	for _, req := range requirements {
		keys := keywords(req.RequirementText)

		var overlapWords []string
		for _, w := range keys {
			if strings.Contains(corpus, w) {
				overlapWords = append(overlapWords, w)
			}
		}

		var kbWords []string
		if knowledgeText != "" {
			for _, w := range keys {
				if strings.Contains(knowledgeText, w) && !containsWord(overlapWords, w) {
					kbWords = append(kbWords, w)
				}
			}
		}

		total := len(overlapWords) + len(kbWords)
		source := "profile"
		if len(kbWords) > 0 {
			source = "profile + knowledge base"
		}
		evidenceWords := append(append([]string{}, overlapWords...), kbWords...)

		var status, evidence, notes string
		switch {
		case total >= 4:
			status = "met"
			evidence = fmt.Sprintf("Strong match (%s): %s", source, strings.Join(capWords(evidenceWords, 6), ", "))
			notes = "Verify exact deliverables, staffing, and due-date constraints."
		case total >= 2:
			status = "partial"
			evidence = fmt.Sprintf("Partial match (%s): %s", source, strings.Join(capWords(evidenceWords, 5), ", "))
			notes = "Add proof points, metrics, and contract-specific tailoring."
		default:
			status = "missing"
			evidence = "No clear support found in profile/capability/past performance context."
			notes = "Needs SME input, artifacts, or teaming partner detail."
		}

		matrix = append(matrix, ComplianceRow{
			RequirementID: req.ID,
			Status:        status,
			Evidence:      evidence,
			Notes:         notes,
		})
	}

	return matrix
}

// BuildGaps lists every requirement the matrix did not rate met. It never
// returns an empty list.
func BuildGaps(matrix []ComplianceRow) []string {
	var gaps []string
	for _, row := range matrix {
		if row.Status != "met" {
			gaps = append(gaps, fmt.Sprintf("%s: %s", row.RequirementID, row.Notes))
		}
	}
	if len(gaps) == 0 {
		gaps = []string{"No major gaps auto-detected. Human validation still required."}
	}
	return gaps
}

func containsWord(words []string, w string) bool {
	for _, existing := range words {
		if existing == w {
			return true
		}
	}
	return false
}

func capWords(words []string, n int) []string {
	if len(words) > n {
		return words[:n]
	}
	return words
}
