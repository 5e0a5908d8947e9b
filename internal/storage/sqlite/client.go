package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/bidforge/backend/internal/storage/models"
	"github.com/bidforge/backend/pkg/logger"
)

// ErrNotFound is returned when a row does not exist or belongs to a
// different org.
var ErrNotFound = errors.New("record not found")

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_documents (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		uploaded_by TEXT,
		title TEXT NOT NULL,
		doc_type TEXT,
		original_filename TEXT,
		blob_key TEXT,
		extracted_text TEXT,
		is_indexed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kdocs_org ON knowledge_documents(org_id);
	CREATE INDEX IF NOT EXISTS idx_kdocs_created ON knowledge_documents(created_at);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		org_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES knowledge_documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_kchunks_doc ON knowledge_chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_kchunks_org ON knowledge_chunks(org_id);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		name TEXT NOT NULL,
		rfp_text TEXT,
		metadata_json TEXT,
		requirements_json TEXT,
		matrix_json TEXT,
		company_profile TEXT,
		past_performance_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_projects_org ON projects(org_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT,
		section_key TEXT,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_project ON conversations(project_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);

	CREATE TABLE IF NOT EXISTS draft_sections (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		section_key TEXT NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_drafts_project ON draft_sections(project_id);
	CREATE INDEX IF NOT EXISTS idx_drafts_section ON draft_sections(project_id, section_key);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc *models.KnowledgeDocument) error {
	query := `
		INSERT INTO knowledge_documents (id, org_id, uploaded_by, title, doc_type, original_filename,
			blob_key, extracted_text, is_indexed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.OrgID,
		doc.UploadedBy,
		doc.Title,
		doc.DocType,
		doc.OriginalFilename,
		doc.BlobKey,
		doc.ExtractedText,
		boolToInt(doc.IsIndexed),
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	logger.Debug("Knowledge document inserted",
		zap.String("document_id", doc.ID),
		zap.String("org_id", doc.OrgID),
	)
	return nil
}

func (c *Client) MarkIndexed(ctx context.Context, documentID string) error {
	res, err := c.db.ExecContext(
		ctx,
		`UPDATE knowledge_documents SET is_indexed = 1, updated_at = ? WHERE id = ?`,
		time.Now().Unix(),
		documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark document indexed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) InsertChunks(ctx context.Context, chunks []models.KnowledgeChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO knowledge_chunks (id, document_id, org_id, chunk_index, text, created_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		_, err := stmt.ExecContext(ctx,
			chunk.ID,
			chunk.DocumentID,
			chunk.OrgID,
			chunk.ChunkIndex,
			chunk.Text,
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	return tx.Commit()
}

func (c *Client) DeleteChunksByDocument(ctx context.Context, documentID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (c *Client) GetDocument(ctx context.Context, orgID, documentID string) (*models.KnowledgeDocument, error) {
	query := `
		SELECT id, org_id, uploaded_by, title, doc_type, original_filename, blob_key,
			extracted_text, is_indexed, created_at, updated_at
		FROM knowledge_documents
		WHERE id = ? AND org_id = ?
	`

	var doc models.KnowledgeDocument
	var isIndexed int
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, documentID, orgID).Scan(
		&doc.ID,
		&doc.OrgID,
		&doc.UploadedBy,
		&doc.Title,
		&doc.DocType,
		&doc.OriginalFilename,
		&doc.BlobKey,
		&doc.ExtractedText,
		&isIndexed,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.IsIndexed = isIndexed == 1
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)
	return &doc, nil
}

func (c *Client) ListDocuments(ctx context.Context, orgID string) ([]models.KnowledgeDocument, error) {
	query := `
		SELECT id, org_id, uploaded_by, title, doc_type, original_filename, is_indexed, created_at, updated_at
		FROM knowledge_documents
		WHERE org_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.KnowledgeDocument
	for rows.Next() {
		var doc models.KnowledgeDocument
		var isIndexed int
		var createdAt, updatedAt int64

		err := rows.Scan(&doc.ID, &doc.OrgID, &doc.UploadedBy, &doc.Title, &doc.DocType,
			&doc.OriginalFilename, &isIndexed, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		doc.IsIndexed = isIndexed == 1
		doc.CreatedAt = time.Unix(createdAt, 0)
		doc.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, orgID, documentID string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM knowledge_documents WHERE id = ? AND org_id = ?`, documentID, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) CreateProject(ctx context.Context, p *models.Project) error {
	query := `
		INSERT INTO projects (id, org_id, name, rfp_text, metadata_json, requirements_json,
			matrix_json, company_profile, past_performance_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.ExecContext(
		ctx,
		query,
		p.ID,
		p.OrgID,
		p.Name,
		p.RFPText,
		p.MetadataJSON,
		p.RequirementsJSON,
		p.MatrixJSON,
		p.CompanyProfile,
		p.PastPerfJSON,
		p.CreatedAt.Unix(),
		p.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	logger.Debug("Project created", zap.String("project_id", p.ID), zap.String("org_id", p.OrgID))
	return nil
}

func (c *Client) GetProject(ctx context.Context, orgID, projectID string) (*models.Project, error) {
	query := `
		SELECT id, org_id, name, rfp_text, metadata_json, requirements_json, matrix_json,
			company_profile, past_performance_json, created_at, updated_at
		FROM projects
		WHERE id = ? AND org_id = ?
	`

	var p models.Project
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, projectID, orgID).Scan(
		&p.ID,
		&p.OrgID,
		&p.Name,
		&p.RFPText,
		&p.MetadataJSON,
		&p.RequirementsJSON,
		&p.MatrixJSON,
		&p.CompanyProfile,
		&p.PastPerfJSON,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	p.CreatedAt = time.Unix(createdAt, 0)
	p.UpdatedAt = time.Unix(updatedAt, 0)
	return &p, nil
}

func (c *Client) ListProjects(ctx context.Context, orgID string) ([]models.Project, error) {
	query := `
		SELECT id, org_id, name, metadata_json, created_at, updated_at
		FROM projects
		WHERE org_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		var p models.Project
		var createdAt, updatedAt int64

		err := rows.Scan(&p.ID, &p.OrgID, &p.Name, &p.MetadataJSON, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		p.CreatedAt = time.Unix(createdAt, 0)
		p.UpdatedAt = time.Unix(updatedAt, 0)
		projects = append(projects, p)
	}

	return projects, rows.Err()
}

// UpdateProjectAnalysis stores the derived artifacts after an analysis
// run.
func (c *Client) UpdateProjectAnalysis(ctx context.Context, orgID, projectID, metadataJSON, requirementsJSON, matrixJSON string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE projects
		SET metadata_json = ?, requirements_json = ?, matrix_json = ?, updated_at = ?
		WHERE id = ? AND org_id = ?
	`, metadataJSON, requirementsJSON, matrixJSON, time.Now().Unix(), projectID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update project analysis: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO conversations (id, project_id, title, section_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		conv.ID,
		conv.ProjectID,
		conv.Title,
		conv.SectionKey,
		conv.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (c *Client) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	var conv models.Conversation
	var createdAt int64

	err := c.db.QueryRowContext(ctx,
		`SELECT id, project_id, title, section_key, created_at FROM conversations WHERE id = ?`,
		conversationID,
	).Scan(&conv.ID, &conv.ProjectID, &conv.Title, &conv.SectionKey, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.CreatedAt = time.Unix(createdAt, 0)
	return &conv, nil
}

func (c *Client) ListConversations(ctx context.Context, projectID string) ([]models.Conversation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, project_id, title, section_key, created_at FROM conversations WHERE project_id = ? ORDER BY created_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var createdAt int64
		if err := rows.Scan(&conv.ID, &conv.ProjectID, &conv.Title, &conv.SectionKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		conv.CreatedAt = time.Unix(createdAt, 0)
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

func (c *Client) InsertMessage(ctx context.Context, msg *models.Message) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		msg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

// SaveDraftSection writes a new version of a section and makes it the
// current one. Earlier versions stay readable but lose is_current.
func (c *Client) SaveDraftSection(ctx context.Context, section *models.DraftSection) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxVersion sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT MAX(version) FROM draft_sections WHERE project_id = ? AND section_key = ?`,
		section.ProjectID, section.SectionKey,
	).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("failed to read section version: %w", err)
	}

	section.Version = int(maxVersion.Int64) + 1
	section.IsCurrent = true

	_, err = tx.ExecContext(ctx,
		`UPDATE draft_sections SET is_current = 0 WHERE project_id = ? AND section_key = ?`,
		section.ProjectID, section.SectionKey,
	)
	if err != nil {
		return fmt.Errorf("failed to retire old section versions: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO draft_sections (id, project_id, section_key, content, version, is_current, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`,
		section.ID,
		section.ProjectID,
		section.SectionKey,
		section.Content,
		section.Version,
		section.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert draft section: %w", err)
	}

	return tx.Commit()
}

// GetCurrentDraftSections returns the current version of every section in
// a project, keyed by section key.
func (c *Client) GetCurrentDraftSections(ctx context.Context, projectID string) (map[string]models.DraftSection, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, project_id, section_key, content, version, created_at
		FROM draft_sections
		WHERE project_id = ? AND is_current = 1
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to get draft sections: %w", err)
	}
	defer rows.Close()

	sections := make(map[string]models.DraftSection)
	for rows.Next() {
		var s models.DraftSection
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.SectionKey, &s.Content, &s.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		s.IsCurrent = true
		s.CreatedAt = time.Unix(createdAt, 0)
		sections[s.SectionKey] = s
	}

	return sections, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
