package models

import "time"

// KnowledgeDocument is an indexed source document in an org's knowledge
// base. IsIndexed flips true only after every chunk has been embedded and
// persisted; a partially indexed document always reads as not indexed.
type KnowledgeDocument struct {
	ID               string    `json:"id"`
	OrgID            string    `json:"org_id"`
	UploadedBy       string    `json:"uploaded_by"`
	Title            string    `json:"title"`
	DocType          string    `json:"doc_type"`
	OriginalFilename string    `json:"original_filename"`
	BlobKey          string    `json:"-"`
	ExtractedText    string    `json:"-"`
	IsIndexed        bool      `json:"is_indexed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// KnowledgeChunk is one ordered segment of a document. Chunks are owned by
// their document and removed with it.
type KnowledgeChunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OrgID      string    `json:"org_id"`
	ChunkIndex int       `json:"chunk_index"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Project holds one RFP analysis workspace: the solicitation text plus the
// derived artifacts (metadata, requirements, compliance matrix, drafts) as
// JSON snapshots.
type Project struct {
	ID               string    `json:"id"`
	OrgID            string    `json:"org_id"`
	Name             string    `json:"name"`
	RFPText          string    `json:"-"`
	MetadataJSON     string    `json:"metadata_json"`
	RequirementsJSON string    `json:"requirements_json"`
	MatrixJSON       string    `json:"matrix_json"`
	CompanyProfile   string    `json:"company_profile"`
	PastPerfJSON     string    `json:"past_performance_json"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Conversation struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	SectionKey string    `json:"section_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// DraftSection is one version of a proposal section. Exactly one version
// per (project, section key) is current.
type DraftSection struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	SectionKey string    `json:"section_key"`
	Content    string    `json:"content"`
	Version    int       `json:"version"`
	IsCurrent  bool      `json:"is_current"`
	CreatedAt  time.Time `json:"created_at"`
}
