package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxArticles      = "neolish_articles"
	idxOutlines      = "neolish_outlines"
	idxStyleProfiles = "neolish_style_profiles"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes. The client
// is usable even when the initial connection fails; the health loop flips
// it back on when the server comes up.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxArticles,
			primaryKey: "id",
			filterable: []string{"teamId", "status"},
			searchable: []string{"title", "content"},
		},
		{
			uid:        idxOutlines,
			primaryKey: "id",
			filterable: []string{"teamId"},
			searchable: []string{"title", "content"},
		},
		{
			uid:        idxStyleProfiles,
			primaryKey: "id",
			filterable: []string{"teamId"},
			searchable: []string{"name", "description"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if q.TeamID == "" {
		return nil, 0, fmt.Errorf("team scope is required")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxArticles, ResultArticle},
		{idxOutlines, ResultOutline},
		{idxStyleProfiles, ResultStyleProfile},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		filters := []string{fmt.Sprintf("teamId = %q", q.TeamID)}
		if q.FilterStatus != "" && ti.rtyp == ResultArticle {
			filters = append(filters, fmt.Sprintf("status = %q", q.FilterStatus))
		}
		sr.Filter = filters
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxArticles:
		return ResultArticle
	case idxOutlines:
		return ResultOutline
	case idxStyleProfiles:
		return ResultStyleProfile
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.TeamID = decodeString(hit, "teamId")

	switch rtyp {
	case ResultArticle:
		r.Status = decodeString(hit, "status")
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	case ResultOutline:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	case ResultStyleProfile:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexArticle adds or updates an article in the search index.
func (m *Meili) IndexArticle(a ArticleRecord) error {
	_, err := m.client.Index(idxArticles).AddDocuments([]ArticleRecord{a}, nil)
	return err
}

// IndexOutline adds or updates an outline in the search index.
func (m *Meili) IndexOutline(o OutlineRecord) error {
	_, err := m.client.Index(idxOutlines).AddDocuments([]OutlineRecord{o}, nil)
	return err
}

// IndexStyleProfile adds or updates a style profile in the search index.
func (m *Meili) IndexStyleProfile(p StyleProfileRecord) error {
	_, err := m.client.Index(idxStyleProfiles).AddDocuments([]StyleProfileRecord{p}, nil)
	return err
}

// DeleteArticle removes an article from the search index.
func (m *Meili) DeleteArticle(id string) error {
	_, err := m.client.Index(idxArticles).DeleteDocument(id, nil)
	return err
}

// DeleteOutline removes an outline from the search index.
func (m *Meili) DeleteOutline(id string) error {
	_, err := m.client.Index(idxOutlines).DeleteDocument(id, nil)
	return err
}

// DeleteStyleProfile removes a style profile from the search index.
func (m *Meili) DeleteStyleProfile(id string) error {
	_, err := m.client.Index(idxStyleProfiles).DeleteDocument(id, nil)
	return err
}

// IndexArticles bulk-indexes articles.
func (m *Meili) IndexArticles(articles []ArticleRecord) error {
	if len(articles) == 0 {
		return nil
	}
	_, err := m.client.Index(idxArticles).AddDocuments(articles, nil)
	return err
}

// IndexOutlines bulk-indexes outlines.
func (m *Meili) IndexOutlines(outlines []OutlineRecord) error {
	if len(outlines) == 0 {
		return nil
	}
	_, err := m.client.Index(idxOutlines).AddDocuments(outlines, nil)
	return err
}

// IndexStyleProfiles bulk-indexes style profiles.
func (m *Meili) IndexStyleProfiles(profiles []StyleProfileRecord) error {
	if len(profiles) == 0 {
		return nil
	}
	_, err := m.client.Index(idxStyleProfiles).AddDocuments(profiles, nil)
	return err
}
