package analysis

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var metaPatterns = map[string][]*regexp.Regexp{
	"solicitation_number": {
		regexp.MustCompile(`(?i)Solicitation\s*(?:No\.?|Number)?\s*[:#]?\s*([A-Z0-9\-]{5,})`),
		regexp.MustCompile(`(?i)RFP\s*(?:No\.?|Number)?\s*[:#]?\s*([A-Z0-9\-]{5,})`),
		regexp.MustCompile(`(?i)RFQ\s*(?:No\.?|Number)?\s*[:#]?\s*([A-Z0-9\-]{5,})`),
	},
	"due_date": {
		regexp.MustCompile(`(?i)Due\s*Date\s*[:#]?\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`),
		regexp.MustCompile(`(?i)(?:Response|Proposal)\s*(?:Due|Deadline)\s*[:#]?\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`),
	},
	"naics": {
		regexp.MustCompile(`(?i)NAICS\s*[:#]?\s*(\d{6})`),
	},
	"psc": {
		regexp.MustCompile(`(?i)PSC\s*[:#]?\s*([A-Z0-9]{4})`),
	},
}

var requirementHints = []string{
	"shall",
	"must",
	"required",
	"offeror shall",
	"vendor shall",
	"contractor shall",
	"is required to",
	"will provide",
}

var whitespaceRE = regexp.MustCompile(`\s+`)

const notFound = "Not found"

// ExtractMetadata scans the RFP text for solicitation number, due date,
// NAICS, and PSC codes. The first matching pattern per field wins.
func ExtractMetadata(text string) Metadata {
	get := func(key string) string {
		for _, re := range metaPatterns[key] {
			if m := re.FindStringSubmatch(text); m != nil {
				return strings.TrimSpace(m[1])
			}
		}
		return notFound
	}
	return Metadata{
		SolicitationNumber: get("solicitation_number"),
		DueDate:            get("due_date"),
		NAICS:              get("naics"),
		PSC:                get("psc"),
	}
}

// ExtractRequirements splits the text into sentences and keeps the ones
// that read like obligations. When nothing matches it returns a single
// informational row so downstream consumers always have a requirement
// list to work from.
func ExtractRequirements(text string) []RequirementItem {
	normalized := whitespaceRE.ReplaceAllString(text, " ")

	var requirements []RequirementItem
	counter := 1

	for _, sentence := range splitSentences(normalized) {
		s := strings.TrimSpace(sentence)
		if len(s) < 30 {
			continue
		}

		lower := strings.ToLower(s)
		if !containsAnyHint(lower) {
			continue
		}

		priority := "should"
		padded := " " + lower + " "
		if strings.Contains(padded, " shall ") || strings.Contains(padded, " must ") {
			priority = "must"
		}

		requirements = append(requirements, RequirementItem{
			ID:              fmt.Sprintf("REQ-%03d", counter),
			Section:         "Auto-detected",
			RequirementText: s,
			Priority:        priority,
			SourceReference: "sentence",
		})
		counter++
	}

	if len(requirements) == 0 {
		requirements = append(requirements, RequirementItem{
			ID:              "REQ-001",
			Section:         "General",
			RequirementText: "No explicit requirement keywords auto-detected; manual review required.",
			Priority:        "informational",
			SourceReference: "full_text",
		})
	}

	return requirements
}

func containsAnyHint(lower string) bool {
	for _, hint := range requirementHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// splitSentences breaks normalized text at sentence-ending punctuation
// followed by whitespace and an uppercase letter or digit. The terminator
// stays with its sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) {
			continue
		}
		if !unicode.IsUpper(runes[j]) && !unicode.IsDigit(runes[j]) {
			continue
		}

		sentences = append(sentences, string(runes[start:i+1]))
		start = j
		i = j - 1
	}

	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}
