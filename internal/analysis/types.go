package analysis

// Metadata holds the solicitation fields recognized in an RFP. Fields that
// no pattern matched carry the literal "Not found".
type Metadata struct {
	SolicitationNumber string `json:"solicitation_number"`
	DueDate            string `json:"due_date"`
	NAICS              string `json:"naics"`
	PSC                string `json:"psc"`
}

// RequirementItem is one extracted obligation from the RFP text.
type RequirementItem struct {
	ID              string `json:"id"`
	Section         string `json:"section"`
	RequirementText string `json:"requirement_text"`
	Priority        string `json:"priority"`
	SourceReference string `json:"source_reference"`
}

// ComplianceRow scores one requirement against the org's profile and
// knowledge base.
type ComplianceRow struct {
	RequirementID string `json:"requirement_id"`
	Status        string `json:"status"`
	Evidence      string `json:"evidence"`
	Owner         string `json:"owner,omitempty"`
	Notes         string `json:"notes"`
}
