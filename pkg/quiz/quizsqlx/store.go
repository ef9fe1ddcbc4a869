// Package quizsqlx persists validated questions and serves generation
// history over sqlx. Queries use ? placeholders rebound per driver, so
// one store covers both SQLite and PostgreSQL; only the DDL differs.
package quizsqlx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Abraxas-365/examforge/pkg/quiz"
	"github.com/jmoiron/sqlx"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS questions (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    source_material      TEXT,
    category             TEXT,
    topic                TEXT,
    question_text        TEXT NOT NULL,
    options              TEXT NOT NULL,
    correct_answer_index INTEGER NOT NULL,
    explanation_data     TEXT,
    tags                 TEXT,
    difficulty           TEXT,
    created_at           TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic, id);
CREATE INDEX IF NOT EXISTS idx_questions_scope ON questions(source_material, category, id);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS questions (
    id                   BIGSERIAL PRIMARY KEY,
    source_material      TEXT,
    category             TEXT,
    topic                TEXT,
    question_text        TEXT NOT NULL,
    options              TEXT NOT NULL,
    correct_answer_index INTEGER NOT NULL,
    explanation_data     TEXT,
    tags                 TEXT,
    difficulty           TEXT,
    created_at           TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_questions_topic ON questions(topic, id);
CREATE INDEX IF NOT EXISTS idx_questions_scope ON questions(source_material, category, id);
`

const defaultHistoryLimit = 50

// Store implements quiz.QuestionStore and quiz.ConceptSource.
type Store struct {
	db *sqlx.DB
}

// NewStore creates the questions table if missing and returns the store.
func NewStore(db *sqlx.DB) (*Store, error) {
	schema := sqliteSchema
	if db.DriverName() == "postgres" {
		schema = postgresSchema
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create questions schema: %w", err)
	}
	return &Store{db: db}, nil
}

// AddQuestion inserts a validated question and returns its row ID. A
// question whose normalized concept+answer signature already exists in
// the same scope is rejected with quiz.ErrDuplicateQuestion.
func (s *Store) AddQuestion(ctx context.Context, q *quiz.ValidatedQuestion) (int64, error) {
	if sig := q.Signature(); sig != "" {
		exists, err := s.signatureExists(ctx, q, sig)
		if err != nil {
			return 0, err
		}
		if exists {
			return 0, quiz.NewDuplicateError(sig)
		}
	}

	optionTexts := make([]string, 0, len(q.Options))
	correctIndex := -1
	for i, opt := range q.Options {
		optionTexts = append(optionTexts, opt.Text)
		if opt.ID == q.CorrectOptionID {
			correctIndex = i
		}
	}
	if correctIndex < 0 {
		return 0, fmt.Errorf("correct option %q not among options", q.CorrectOptionID)
	}

	optionsJSON, err := json.Marshal(optionTexts)
	if err != nil {
		return 0, fmt.Errorf("encode options: %w", err)
	}
	tagsJSON, err := json.Marshal(q.Tags)
	if err != nil {
		return 0, fmt.Errorf("encode tags: %w", err)
	}
	var explanationJSON []byte
	if q.Explanation != nil {
		explanationJSON, err = json.Marshal(q.Explanation)
		if err != nil {
			return 0, fmt.Errorf("encode explanation: %w", err)
		}
	}

	args := []any{
		q.SourceMaterial, q.Category, q.Topic, q.Stem,
		string(optionsJSON), correctIndex, string(explanationJSON),
		string(tagsJSON), q.Difficulty, time.Now().UTC(),
	}

	if s.db.DriverName() == "postgres" {
		var id int64
		query := s.db.Rebind(`
			INSERT INTO questions (source_material, category, topic, question_text,
			    options, correct_answer_index, explanation_data, tags, difficulty, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`)
		if err := s.db.GetContext(ctx, &id, query, args...); err != nil {
			return 0, fmt.Errorf("insert question: %w", err)
		}
		return id, nil
	}

	query := s.db.Rebind(`
		INSERT INTO questions (source_material, category, topic, question_text,
		    options, correct_answer_index, explanation_data, tags, difficulty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return res.LastInsertId()
}

type conceptRow struct {
	QuestionText string `db:"question_text"`
	Options      string `db:"options"`
	CorrectIndex int    `db:"correct_answer_index"`
	Tags         string `db:"tags"`
}

// ExistingConcepts returns recent questions within the scope, newest
// first, reduced to what dedup and prompt history need.
func (s *Store) ExistingConcepts(ctx context.Context, scope quiz.Scope) ([]quiz.ConceptRecord, error) {
	limit := scope.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.selectConcepts(ctx, scope, limit)
}

// signatureExists scans the question's scope for a row with the same
// signature. Unlike history loads the scan is unbounded, so the insert
// gate sees every row the scope can reach.
func (s *Store) signatureExists(ctx context.Context, q *quiz.ValidatedQuestion, sig string) (bool, error) {
	scope := quiz.Scope{SourceMaterial: q.SourceMaterial, Topic: q.Topic}
	if q.Category != "" {
		scope.Categories = []string{q.Category}
	}

	records, err := s.selectConcepts(ctx, scope, 0)
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.SignatureText() == sig {
			return true, nil
		}
	}
	return false, nil
}

// selectConcepts loads scope rows newest first. limit <= 0 means no limit.
func (s *Store) selectConcepts(ctx context.Context, scope quiz.Scope, limit int) ([]quiz.ConceptRecord, error) {
	var (
		where string
		args  []any
	)
	switch {
	case scope.Topic != "":
		where = "topic = ?"
		args = append(args, scope.Topic)
	case len(scope.Categories) > 0:
		placeholders := strings.TrimRight(strings.Repeat("?,", len(scope.Categories)), ",")
		where = "category IN (" + placeholders + ")"
		for _, c := range scope.Categories {
			args = append(args, c)
		}
	default:
		where = "1 = 1"
	}
	if scope.SourceMaterial != "" {
		where += " AND source_material = ?"
		args = append(args, scope.SourceMaterial)
	}

	query := fmt.Sprintf(`
		SELECT question_text, options, correct_answer_index, tags
		FROM questions WHERE %s
		ORDER BY id DESC`, where)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	query = s.db.Rebind(query)

	var rows []conceptRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load existing concepts: %w", err)
	}

	records := make([]quiz.ConceptRecord, 0, len(rows))
	for _, r := range rows {
		record := quiz.ConceptRecord{Stem: r.QuestionText}

		var options []string
		if err := json.Unmarshal([]byte(r.Options), &options); err == nil &&
			r.CorrectIndex >= 0 && r.CorrectIndex < len(options) {
			record.Answer = options[r.CorrectIndex]
		}

		var tags []string
		if err := json.Unmarshal([]byte(r.Tags), &tags); err == nil {
			for _, tag := range tags {
				if rest, ok := strings.CutPrefix(tag, "concept:"); ok {
					record.Concept = strings.TrimSpace(rest)
					break
				}
			}
		}

		records = append(records, record)
	}
	return records, nil
}
