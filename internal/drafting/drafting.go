package drafting

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/analysis"
	"github.com/bidforge/backend/internal/llm"
	"github.com/bidforge/backend/pkg/logger"
)

// SectionKeys lists the draft sections in output order.
var SectionKeys = []string{
	"executive_summary",
	"technical_approach",
	"past_performance",
	"management_plan",
}

const systemPrompt = "You draft federal proposal responses with strict factual grounding."

// Completer is the slice of the LLM client that drafting needs.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error)
}

// Input bundles everything the drafter reads.
type Input struct {
	Metadata        analysis.Metadata
	Requirements    []analysis.RequirementItem
	Matrix          []analysis.ComplianceRow
	CompanyName     string
	CompanyProfile  string
	PastPerformance []string
}

// Generate asks the LLM for the four proposal sections and falls back to
// deterministic templates when the provider is unavailable, rate limited,
// or returns output missing the mandatory sections. The result always has
// every key in SectionKeys plus company_profile_reference.
func Generate(ctx context.Context, completer Completer, in Input) map[string]string {
	var output string
	if completer != nil {
		prompt := BuildPrompt(in)
		var err error
		output, err = completer.Complete(ctx, []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		}, 0.2)
		if err != nil {
			logger.Warn("Draft generation via LLM failed, using fallback sections", zap.Error(err))
			output = ""
		}
	}

	if output != "" {
		parsed := SplitSections(output)
		if parsed["executive_summary"] != "" && parsed["technical_approach"] != "" {
			parsed["company_profile_reference"] = truncate(in.CompanyProfile, 1800)
			return parsed
		}
		logger.Warn("LLM draft output missing mandatory sections, using fallback")
	}

	return FallbackSections(in)
}

// BuildPrompt renders the drafting prompt with bounded previews of the
// requirements and compliance matrix.
func BuildPrompt(in Input) string {
	reqs := in.Requirements
	if len(reqs) > 40 {
		reqs = reqs[:40]
	}
	reqLines := make([]string, len(reqs))
	for i, r := range reqs {
		reqLines[i] = fmt.Sprintf("- %s: %s", r.ID, r.RequirementText)
	}

	matrix := in.Matrix
	if len(matrix) > 40 {
		matrix = matrix[:40]
	}
	matrixLines := make([]string, len(matrix))
	for i, m := range matrix {
		matrixLines[i] = fmt.Sprintf("- %s: %s", m.RequirementID, m.Status)
	}

	pp := "- None provided"
	if len(in.PastPerformance) > 0 {
		items := in.PastPerformance
		if len(items) > 8 {
			items = items[:8]
		}
		lines := make([]string, len(items))
		for i, p := range items {
			lines[i] = "- " + p
		}
		pp = strings.Join(lines, "\n")
	}

	company := in.CompanyName
	if company == "" {
		company = "Not provided"
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are an expert federal proposal writer.
Write concise, compliant-first proposal draft sections using only provided context.
Do not invent certifications, contracts, or legal claims.

Company Name: %s
Metadata: solicitation_number=%s, due_date=%s, naics=%s, psc=%s

Company Profile:
%s

Past Performance:
%s

Requirements:
%s

Coverage Snapshot:
%s

Output exactly these section headers in markdown:
## executive_summary
## technical_approach
## past_performance
## management_plan

Each section should be practical, specific, and ready for human editing.
`,
		company,
		in.Metadata.SolicitationNumber, in.Metadata.DueDate, in.Metadata.NAICS, in.Metadata.PSC,
		truncate(in.CompanyProfile, 5000),
		pp,
		strings.Join(reqLines, "\n"),
		strings.Join(matrixLines, "\n"),
	))
}

// SplitSections parses "## section_key" markdown headers into a map with
// every key in SectionKeys present. Text before the first recognized
// header is dropped.
func SplitSections(markdown string) map[string]string {
	sections := make(map[string]string, len(SectionKeys))
	for _, key := range SectionKeys {
		sections[key] = ""
	}

	known := make(map[string]string, len(SectionKeys)*2)
	for _, key := range SectionKeys {
		known["##_"+key] = key
		known["##"+key] = key
	}

	current := ""
	for _, rawLine := range strings.Split(markdown, "\n") {
		header := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(rawLine)), " ", "_")
		if key, ok := known[header]; ok {
			current = key
			continue
		}
		if current != "" {
			sections[current] += rawLine + "\n"
		}
	}

	for key, text := range sections {
		sections[key] = strings.TrimSpace(text)
	}
	return sections
}

// FallbackSections produces deterministic draft sections when no LLM
// output is usable.
func FallbackSections(in Input) map[string]string {
	counts := map[string]int{}
	for _, row := range in.Matrix {
		counts[row.Status]++
	}

	executiveSummary := fmt.Sprintf(
		"AI-generated draft; human review required.\n\n"+
			"This package addresses %d identified requirements for solicitation %s. "+
			"Coverage snapshot: met=%d, partial=%d, missing=%d.",
		len(in.Requirements), in.Metadata.SolicitationNumber,
		counts["met"], counts["partial"], counts["missing"],
	)

	technicalApproach := "The team will execute through phased mobilization, requirements traceability, " +
		"quality control checkpoints, and milestone-based reporting. " +
		"Tailor this section to agency mission outcomes, staffing, and delivery timeline."

	pp := "- Add comparable project references."
	if len(in.PastPerformance) > 0 {
		items := in.PastPerformance
		if len(items) > 5 {
			items = items[:5]
		}
		lines := make([]string, len(items))
		for i, item := range items {
			lines[i] = "- " + item
		}
		pp = strings.Join(lines, "\n")
	}

	managementPlan := "Assign a proposal manager, technical lead, and compliance reviewer. " +
		"Run final red-team checks against every mandatory requirement and attachment."

	return map[string]string{
		"executive_summary":         executiveSummary,
		"technical_approach":        technicalApproach,
		"past_performance":          "Relevant past performance:\n" + pp,
		"management_plan":           managementPlan,
		"company_profile_reference": "Company context reference:\n" + truncate(in.CompanyProfile, 1800),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
