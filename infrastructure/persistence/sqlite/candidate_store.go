// Package sqlite implements the candidate store on an embedded SQLite
// database for single-node and offline deployments. The driver is pure Go,
// so the binary stays cgo-free.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"mnemo-backend/application/ports"
	"mnemo-backend/domain/core/entities"
	"mnemo-backend/domain/core/valueobjects"
	"mnemo-backend/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS candidates (
	id                  TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	content             TEXT NOT NULL,
	summary             TEXT NOT NULL DEFAULT '',
	importance          REAL NOT NULL,
	valence             REAL NOT NULL,
	occurred_at         INTEGER NOT NULL,
	created_at          INTEGER NOT NULL,
	updated_at          INTEGER NOT NULL,
	last_accessed_at    INTEGER NOT NULL,
	consolidation_count INTEGER NOT NULL DEFAULT 0,
	access_count        INTEGER NOT NULL DEFAULT 0,
	domains             TEXT NOT NULL DEFAULT '[]',
	tags                TEXT NOT NULL DEFAULT '[]',
	embedding           TEXT NOT NULL DEFAULT '[]',
	archived            INTEGER NOT NULL DEFAULT 0,
	group_id            TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_selection
	ON candidates (user_id, archived, consolidation_count, occurred_at);

CREATE TABLE IF NOT EXISTS consolidated_records (
	id          TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	group_id    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	parent_ids  TEXT NOT NULL,
	domains     TEXT NOT NULL DEFAULT '[]',
	tags        TEXT NOT NULL DEFAULT '[]',
	patterns    TEXT NOT NULL DEFAULT '[]',
	insights    TEXT NOT NULL DEFAULT '[]',
	importance  REAL NOT NULL,
	coherence   REAL NOT NULL,
	span_start  INTEGER NOT NULL,
	span_end    INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (user_id, id)
);
`

// CandidateStore implements ports.CandidateStore on SQLite
type CandidateStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ports.CandidateStore = (*CandidateStore)(nil)

// Open opens (and if needed creates) the database at path
func Open(path string, logger *zap.Logger) (*CandidateStore, error) {
	if path == "" {
		return nil, errors.NewValidationError("database path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewDatabaseError("open database", err)
	}
	// the driver serializes writes; a single connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.NewDatabaseError("apply schema", err)
	}

	return &CandidateStore{
		db:     db,
		logger: logger.With(zap.String("component", "sqlite-store")),
	}, nil
}

// Close releases the database handle
func (s *CandidateStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a candidate
func (s *CandidateStore) Save(ctx context.Context, candidate *entities.Candidate) error {
	if candidate == nil {
		return errors.NewValidationError("candidate is required")
	}

	domains, err := marshalStrings(candidate.Domains())
	if err != nil {
		return err
	}
	tags, err := marshalStrings(candidate.Tags())
	if err != nil {
		return err
	}
	embedding, err := json.Marshal(candidate.Embedding())
	if err != nil {
		return errors.NewInternalError("marshal embedding").WithCause(err)
	}

	groupID := ""
	if !candidate.GroupID().IsZero() {
		groupID = candidate.GroupID().String()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO candidates (
			id, user_id, content, summary, importance, valence,
			occurred_at, created_at, updated_at, last_accessed_at,
			consolidation_count, access_count, domains, tags, embedding,
			archived, group_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		candidate.ID().String(),
		candidate.UserID(),
		candidate.Content(),
		candidate.Summary(),
		candidate.Importance().Value(),
		candidate.Valence().Value(),
		candidate.OccurredAt().UnixNano(),
		candidate.CreatedAt().UnixNano(),
		candidate.UpdatedAt().UnixNano(),
		candidate.LastAccessedAt().UnixNano(),
		candidate.ConsolidationCount(),
		candidate.AccessCount(),
		string(domains),
		string(tags),
		string(embedding),
		boolToInt(candidate.IsArchived()),
		groupID,
	)
	if err != nil {
		return errors.NewDatabaseError("save candidate", err)
	}
	return nil
}

// GetByID retrieves one candidate
func (s *CandidateStore) GetByID(ctx context.Context, userID string, id valueobjects.CandidateID) (*entities.Candidate, error) {
	row := s.db.QueryRowContext(ctx,
		selectCandidateColumns+` WHERE user_id = ? AND id = ?`,
		userID, id.String())

	candidate, err := scanCandidate(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("candidate " + id.String())
	}
	if err != nil {
		return nil, err
	}
	return candidate, nil
}

// GetByUserID returns all of a user's candidates
func (s *CandidateStore) GetByUserID(ctx context.Context, userID string) ([]*entities.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		selectCandidateColumns+` WHERE user_id = ? ORDER BY occurred_at, id`,
		userID)
	if err != nil {
		return nil, errors.NewDatabaseError("query candidates", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// SelectConsolidationCandidates pushes the eligibility filter into SQL
func (s *CandidateStore) SelectConsolidationCandidates(ctx context.Context, criteria ports.SelectionCriteria) ([]*entities.Candidate, error) {
	if criteria.UserID == "" {
		return nil, errors.NewValidationError("user ID is required")
	}
	asOf := criteria.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	cutoff := asOf.Add(-criteria.MinAge).UnixNano()

	query := selectCandidateColumns + `
		WHERE user_id = ?
		  AND archived = 0
		  AND consolidation_count < ?
		  AND occurred_at <= ?
		ORDER BY occurred_at, id`
	args := []interface{}{criteria.UserID, criteria.MaxConsolidationCount, cutoff}
	if criteria.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, criteria.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("select consolidation candidates", err)
	}
	defer rows.Close()
	return collectCandidates(rows)
}

// MarkConsolidated updates all listed candidates in one transaction and
// rolls back if any of them is missing or archived
func (s *CandidateStore) MarkConsolidated(ctx context.Context, userID string, ids []valueobjects.CandidateID, groupID valueobjects.GroupID) error {
	if len(ids) == 0 {
		return errors.NewValidationError("candidate IDs are required")
	}
	if groupID.IsZero() {
		return errors.NewValidationError("group ID is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseError("begin transaction", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixNano()
	for _, id := range ids {
		result, err := tx.ExecContext(ctx, `
			UPDATE candidates
			SET group_id = ?, consolidation_count = consolidation_count + 1, updated_at = ?
			WHERE user_id = ? AND id = ? AND archived = 0`,
			groupID.String(), now, userID, id.String())
		if err != nil {
			return errors.NewDatabaseError("mark consolidated", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.NewDatabaseError("mark consolidated", err)
		}
		if affected == 0 {
			return errors.NewNotFoundError("candidate " + id.String())
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseError("commit mark consolidated", err)
	}
	return nil
}

// SaveRecord persists a consolidated record
func (s *CandidateStore) SaveRecord(ctx context.Context, record *entities.ConsolidatedRecord) error {
	if record == nil {
		return errors.NewValidationError("record is required")
	}

	parents := make([]string, 0, len(record.ParentIDs()))
	for _, id := range record.ParentIDs() {
		parents = append(parents, id.String())
	}
	parentJSON, err := marshalStrings(parents)
	if err != nil {
		return err
	}
	domains, err := marshalStrings(record.Domains())
	if err != nil {
		return err
	}
	tags, err := marshalStrings(record.Tags())
	if err != nil {
		return err
	}
	patterns, err := marshalStrings(record.Patterns())
	if err != nil {
		return err
	}
	insights, err := marshalStrings(record.Insights())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO consolidated_records (
			id, user_id, group_id, title, content, parent_ids,
			domains, tags, patterns, insights, importance, coherence,
			span_start, span_end, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID().String(),
		record.UserID(),
		record.GroupID().String(),
		record.Title(),
		record.Content(),
		string(parentJSON),
		string(domains),
		string(tags),
		string(patterns),
		string(insights),
		record.Importance().Value(),
		record.Coherence().Value(),
		record.SpanStart().UnixNano(),
		record.SpanEnd().UnixNano(),
		record.CreatedAt().UnixNano(),
	)
	if err != nil {
		return errors.NewDatabaseError("save record", err)
	}
	return nil
}

// GetRecordsByUserID returns all consolidated records for a user
func (s *CandidateStore) GetRecordsByUserID(ctx context.Context, userID string) ([]*entities.ConsolidatedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, group_id, title, content, parent_ids,
		       domains, tags, patterns, insights, importance, coherence,
		       span_start, span_end, created_at
		FROM consolidated_records
		WHERE user_id = ?
		ORDER BY created_at, id`,
		userID)
	if err != nil {
		return nil, errors.NewDatabaseError("query records", err)
	}
	defer rows.Close()

	var records []*entities.ConsolidatedRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate records", err)
	}
	return records, nil
}

// Delete removes a candidate
func (s *CandidateStore) Delete(ctx context.Context, userID string, id valueobjects.CandidateID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM candidates WHERE user_id = ? AND id = ?`,
		userID, id.String())
	if err != nil {
		return errors.NewDatabaseError("delete candidate", err)
	}
	return nil
}

const selectCandidateColumns = `
	SELECT id, user_id, content, summary, importance, valence,
	       occurred_at, created_at, updated_at, last_accessed_at,
	       consolidation_count, access_count, domains, tags, embedding, archived
	FROM candidates`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCandidate(row rowScanner) (*entities.Candidate, error) {
	var (
		idRaw, userID, content, summary     string
		importance, valence                 float64
		occurredAt, createdAt               int64
		updatedAt, lastAccessedAt           int64
		consolidationCount, accessCount     int
		domainsRaw, tagsRaw, embeddingRaw   string
		archived                            int
	)
	err := row.Scan(&idRaw, &userID, &content, &summary, &importance, &valence,
		&occurredAt, &createdAt, &updatedAt, &lastAccessedAt,
		&consolidationCount, &accessCount, &domainsRaw, &tagsRaw, &embeddingRaw, &archived)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.NewDatabaseError("scan candidate", err)
	}

	id, err := valueobjects.NewCandidateIDFromString(idRaw)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored candidate ID").WithCause(err)
	}
	domains, err := unmarshalStrings(domainsRaw)
	if err != nil {
		return nil, err
	}
	tags, err := unmarshalStrings(tagsRaw)
	if err != nil {
		return nil, err
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(embeddingRaw), &embedding); err != nil {
		return nil, errors.NewInternalError("unmarshal embedding").WithCause(err)
	}

	return entities.ReconstructCandidate(
		id, userID, content, summary,
		valueobjects.NewUnitScore(importance),
		valueobjects.NewModulation(valence),
		time.Unix(0, occurredAt),
		time.Unix(0, createdAt),
		time.Unix(0, updatedAt),
		time.Unix(0, lastAccessedAt),
		consolidationCount, accessCount,
		domains, tags, embedding,
		archived != 0,
	)
}

func collectCandidates(rows *sql.Rows) ([]*entities.Candidate, error) {
	var candidates []*entities.Candidate
	for rows.Next() {
		candidate, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate candidates", err)
	}
	return candidates, nil
}

func scanRecord(row rowScanner) (*entities.ConsolidatedRecord, error) {
	var (
		idRaw, userID, groupRaw, title, content string
		parentsRaw, domainsRaw, tagsRaw         string
		patternsRaw, insightsRaw                string
		importance, coherence                   float64
		spanStart, spanEnd, createdAt           int64
	)
	err := row.Scan(&idRaw, &userID, &groupRaw, &title, &content, &parentsRaw,
		&domainsRaw, &tagsRaw, &patternsRaw, &insightsRaw, &importance, &coherence,
		&spanStart, &spanEnd, &createdAt)
	if err != nil {
		return nil, errors.NewDatabaseError("scan record", err)
	}

	id, err := valueobjects.NewCandidateIDFromString(idRaw)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored record ID").WithCause(err)
	}
	groupID, err := valueobjects.NewGroupIDFromString(groupRaw)
	if err != nil {
		return nil, errors.NewInternalError("invalid stored group ID").WithCause(err)
	}

	parentStrings, err := unmarshalStrings(parentsRaw)
	if err != nil {
		return nil, err
	}
	parents := make([]valueobjects.CandidateID, 0, len(parentStrings))
	for _, raw := range parentStrings {
		parent, err := valueobjects.NewCandidateIDFromString(raw)
		if err != nil {
			return nil, errors.NewInternalError("invalid stored parent ID").WithCause(err)
		}
		parents = append(parents, parent)
	}

	domains, err := unmarshalStrings(domainsRaw)
	if err != nil {
		return nil, err
	}
	tags, err := unmarshalStrings(tagsRaw)
	if err != nil {
		return nil, err
	}
	patterns, err := unmarshalStrings(patternsRaw)
	if err != nil {
		return nil, err
	}
	insights, err := unmarshalStrings(insightsRaw)
	if err != nil {
		return nil, err
	}

	return entities.ReconstructConsolidatedRecord(id, entities.ConsolidatedRecordParams{
		GroupID:    groupID,
		UserID:     userID,
		Title:      title,
		Content:    content,
		ParentIDs:  parents,
		Domains:    domains,
		Tags:       tags,
		Patterns:   patterns,
		Insights:   insights,
		Importance: importance,
		Coherence:  valueobjects.NewUnitScore(coherence),
		SpanStart:  time.Unix(0, spanStart),
		SpanEnd:    time.Unix(0, spanEnd),
	}, time.Unix(0, createdAt))
}

func marshalStrings(values []string) ([]byte, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil, errors.NewInternalError("marshal string list").WithCause(err)
	}
	return data, nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.NewInternalError("unmarshal string list").WithCause(err)
	}
	return values, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
