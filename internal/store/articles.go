package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const articleColumns = `id, team_id, user_id, outline_id, style_profile_id, title, content,
	structured_content, analyst_notes, status, writing_purpose, target_audience_ids,
	error_message, generation_started_at, generation_finished_at, created_at, updated_at`

func scanArticle(row interface{ Scan(...any) error }) (Article, error) {
	var item Article
	var structured, purposes, audiences []byte
	err := row.Scan(
		&item.ID, &item.TeamID, &item.UserID, &item.OutlineID, &item.StyleProfileID,
		&item.Title, &item.Content, &structured, &item.AnalystNotes, &item.Status,
		&purposes, &audiences, &item.ErrorMessage,
		&item.GenerationStartedAt, &item.GenerationFinishedAt,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return Article{}, err
	}
	if len(structured) > 0 {
		item.StructuredContent = json.RawMessage(structured)
	}
	if len(purposes) > 0 {
		if err := json.Unmarshal(purposes, &item.WritingPurpose); err != nil {
			return Article{}, fmt.Errorf("decode writing_purpose: %w", err)
		}
	}
	if len(audiences) > 0 {
		if err := json.Unmarshal(audiences, &item.TargetAudienceIDs); err != nil {
			return Article{}, fmt.Errorf("decode target_audience_ids: %w", err)
		}
	}
	return item, nil
}

func jsonStrings(values []string) []byte {
	if values == nil {
		values = []string{}
	}
	encoded, _ := json.Marshal(values)
	return encoded
}

func (s *PostgresStore) InsertArticle(ctx context.Context, item Article) error {
	structured := []byte("null")
	if len(item.StructuredContent) > 0 {
		structured = item.StructuredContent
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, team_id, user_id, outline_id, style_profile_id, title, content,
			structured_content, analyst_notes, status, writing_purpose, target_audience_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, item.ID, item.TeamID, item.UserID, item.OutlineID, item.StyleProfileID, item.Title,
		item.Content, structured, item.AnalystNotes, item.Status,
		jsonStrings(item.WritingPurpose), jsonStrings(item.TargetAudienceIDs))
	if err != nil {
		return fmt.Errorf("insert article: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetArticle(ctx context.Context, articleID string) (Article, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id=$1`, articleID)
	return scanArticle(row)
}

// ListArticles applies team, status and title filters in SQL; purpose and
// audience substring filters run over the decoded rows afterwards, matching
// the original read path. totalCount reflects the post-filter total.
func (s *PostgresStore) ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, int, error) {
	builder := psql.Select(articleColumns).
		From("articles").
		Where(sq.Eq{"team_id": filter.TeamID}).
		OrderBy("created_at DESC")
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": filter.Status})
	}
	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		builder = builder.Where(sq.ILike{"title": "%" + term + "%"})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build article query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	matched := make([]Article, 0)
	for rows.Next() {
		item, err := scanArticle(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan article: %w", err)
		}
		if filter.Purpose != "" && !containsFold(item.WritingPurpose, filter.Purpose) {
			continue
		}
		if filter.Audience != "" && !containsFold(item.TargetAudienceIDs, filter.Audience) {
			continue
		}
		matched = append(matched, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate articles: %w", err)
	}

	total := len(matched)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= total {
		return []Article{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func containsFold(values []string, substr string) bool {
	needle := strings.ToLower(substr)
	for _, value := range values {
		if strings.Contains(strings.ToLower(value), needle) {
			return true
		}
	}
	return false
}

func (s *PostgresStore) ArticleTitleExists(ctx context.Context, teamID, title string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM articles WHERE team_id=$1 AND title=$2)
	`, teamID, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check article title: %w", err)
	}
	return exists, nil
}

// ClaimQueuedArticle atomically moves a queued article to processing. The
// row-level claim is the cross-replica duplicate-submission guard: only one
// caller observes claimed=true for a given queued article.
func (s *PostgresStore) ClaimQueuedArticle(ctx context.Context, articleID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET status='processing', generation_started_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='queued'
	`, articleID)
	if err != nil {
		return false, fmt.Errorf("claim article: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim article rows: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) CompleteArticleGeneration(ctx context.Context, articleID, content string, structured json.RawMessage, analystNotes string) error {
	payload := []byte("null")
	if len(structured) > 0 {
		payload = structured
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET content=$2, structured_content=$3, analyst_notes=$4, status='draft',
			error_message='', generation_finished_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='processing'
	`, articleID, content, payload, analystNotes)
	if err != nil {
		return fmt.Errorf("complete generation: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailArticleGeneration(ctx context.Context, articleID, content, detail string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET content=$2, error_message=$3, status='generation_failed',
			generation_finished_at=NOW(), updated_at=NOW()
		WHERE id=$1 AND status='processing'
	`, articleID, content, detail)
	if err != nil {
		return fmt.Errorf("fail generation: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateArticleStatus(ctx context.Context, articleID, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE articles SET status=$2, updated_at=NOW() WHERE id=$1`, articleID, status)
	if err != nil {
		return fmt.Errorf("update article status: %w", err)
	}
	return nil
}

// RequeueArticle resets a failed article for another generation attempt.
func (s *PostgresStore) RequeueArticle(ctx context.Context, articleID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET status='queued', content='', error_message='',
			generation_started_at=NULL, generation_finished_at=NULL, updated_at=NOW()
		WHERE id=$1 AND status='generation_failed'
	`, articleID)
	if err != nil {
		return false, fmt.Errorf("requeue article: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("requeue article rows: %w", err)
	}
	return affected == 1, nil
}

func (s *PostgresStore) UpdateArticleContent(ctx context.Context, articleID, title, content string, structured json.RawMessage, analystNotes string) error {
	payload := []byte("null")
	if len(structured) > 0 {
		payload = structured
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET title=$2, content=$3, structured_content=$4, analyst_notes=$5, updated_at=NOW()
		WHERE id=$1
	`, articleID, title, content, payload, analystNotes)
	if err != nil {
		return fmt.Errorf("update article content: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteArticle(ctx context.Context, articleID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id=$1`, articleID)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	return nil
}

// QueuedArticleIDs returns queued article IDs in FIFO order, used to resume
// the queue after a restart.
func (s *PostgresStore) QueuedArticleIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM articles WHERE status='queued' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list queued articles: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan queued id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReleaseStaleProcessing flips processing rows whose claim predates the cutoff
// to generation_failed. These are rows whose worker died mid-run.
func (s *PostgresStore) ReleaseStaleProcessing(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET status='generation_failed',
			content='Generation failed: worker lost before completion',
			error_message='worker lost before completion',
			generation_finished_at=NOW(), updated_at=NOW()
		WHERE status='processing' AND generation_started_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale processing: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release stale rows: %w", err)
	}
	return int(affected), nil
}

// QueueSnapshot derives the authoritative queue view from article rows.
func (s *PostgresStore) QueueSnapshot(ctx context.Context, teamID string) (QueueSnapshot, error) {
	snapshot := QueueSnapshot{Positions: []QueuePosition{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status='queued'),
			COUNT(*) FILTER (WHERE status='processing')
		FROM articles WHERE team_id=$1
	`, teamID).Scan(&snapshot.QueuedCount, &snapshot.ProcessingCount)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("queue counts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title FROM articles
		WHERE team_id=$1 AND status='queued'
		ORDER BY created_at
	`, teamID)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("queue positions: %w", err)
	}
	defer rows.Close()

	position := 1
	for rows.Next() {
		var entry QueuePosition
		if err := rows.Scan(&entry.ArticleID, &entry.Title); err != nil {
			return QueueSnapshot{}, fmt.Errorf("scan queue position: %w", err)
		}
		entry.Position = position
		position++
		snapshot.Positions = append(snapshot.Positions, entry)
	}
	if err := rows.Err(); err != nil {
		return QueueSnapshot{}, fmt.Errorf("iterate queue positions: %w", err)
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (generation_finished_at - generation_started_at)))
		FROM (
			SELECT generation_started_at, generation_finished_at
			FROM articles
			WHERE team_id=$1
				AND generation_started_at IS NOT NULL
				AND generation_finished_at IS NOT NULL
			ORDER BY generation_finished_at DESC
			LIMIT 20
		) recent
	`, teamID).Scan(&avg)
	if err != nil {
		return QueueSnapshot{}, fmt.Errorf("average processing time: %w", err)
	}
	if avg.Valid {
		snapshot.AverageProcessingSeconds = avg.Float64
	}
	return snapshot, nil
}

// PendingCount is the queued+processing total the poll watcher tracks.
func (s *PostgresStore) PendingCount(ctx context.Context, teamID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM articles
		WHERE team_id=$1 AND status IN ('queued', 'processing')
	`, teamID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return count, nil
}

// TotalPendingCount is the cross-team variant used by the process-wide
// watcher.
func (s *PostgresStore) TotalPendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM articles WHERE status IN ('queued', 'processing')
	`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("total pending count: %w", err)
	}
	return count, nil
}
