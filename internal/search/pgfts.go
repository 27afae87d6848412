package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across articles, outlines, and
// style_profiles using plainto_tsquery and ts_rank, with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}
	if q.TeamID == "" {
		return nil, 0, fmt.Errorf("team scope is required")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text, q.TeamID}
	argN := 3

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultArticle {
		artWhere := "a.fts @@ " + tsQuery + " AND a.team_id = $2"
		if q.FilterStatus != "" {
			artWhere += fmt.Sprintf(" AND a.status = $%d", argN)
			args = append(args, q.FilterStatus)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'article'::text AS type, a.id, a.title,
				ts_headline('english', coalesce(a.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				a.team_id, a.status,
				ts_rank(a.fts, %s) AS rank
			FROM articles a
			WHERE %s`, tsQuery, tsQuery, artWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultOutline {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'outline'::text AS type, o.id, o.title,
				ts_headline('english', coalesce(o.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				o.team_id, ''::text AS status,
				ts_rank(o.fts, %s) AS rank
			FROM outlines o
			WHERE o.fts @@ %s AND o.team_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if q.FilterType == "" || q.FilterType == ResultStyleProfile {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'styleProfile'::text AS type, sp.id, sp.name AS title,
				ts_headline('english', coalesce(sp.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				sp.team_id, ''::text AS status,
				ts_rank(sp.fts, %s) AS rank
			FROM style_profiles sp
			WHERE sp.fts @@ %s AND sp.team_id = $2`, tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, team_id, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.TeamID, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ArticleRecord, []OutlineRecord, []StyleProfileRecord, error) {
	articleRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(content, ''), team_id, status
		FROM articles
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load articles: %w", err)
	}
	defer articleRows.Close()

	articles := make([]ArticleRecord, 0)
	for articleRows.Next() {
		var a ArticleRecord
		if err := articleRows.Scan(&a.ID, &a.Title, &a.Content, &a.TeamID, &a.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := articleRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate articles: %w", err)
	}

	outlineRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, coalesce(content, ''), team_id
		FROM outlines
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load outlines: %w", err)
	}
	defer outlineRows.Close()

	outlines := make([]OutlineRecord, 0)
	for outlineRows.Next() {
		var o OutlineRecord
		if err := outlineRows.Scan(&o.ID, &o.Title, &o.Content, &o.TeamID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan outline: %w", err)
		}
		outlines = append(outlines, o)
	}
	if err := outlineRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate outlines: %w", err)
	}

	profileRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, ''), team_id
		FROM style_profiles
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load style profiles: %w", err)
	}
	defer profileRows.Close()

	profiles := make([]StyleProfileRecord, 0)
	for profileRows.Next() {
		var sp StyleProfileRecord
		if err := profileRows.Scan(&sp.ID, &sp.Name, &sp.Description, &sp.TeamID); err != nil {
			return nil, nil, nil, fmt.Errorf("scan style profile: %w", err)
		}
		profiles = append(profiles, sp)
	}
	if err := profileRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate style profiles: %w", err)
	}

	return articles, outlines, profiles, nil
}
