package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexArticle indexes an article (fire-and-forget to Meilisearch).
func (s *Service) IndexArticle(a ArticleRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexArticle(a); err != nil {
			log.Printf("search: index article %s: %v", a.ID, err)
		}
	}()
}

// IndexOutline indexes an outline (fire-and-forget to Meilisearch).
func (s *Service) IndexOutline(o OutlineRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexOutline(o); err != nil {
			log.Printf("search: index outline %s: %v", o.ID, err)
		}
	}()
}

// IndexStyleProfile indexes a style profile (fire-and-forget to Meilisearch).
func (s *Service) IndexStyleProfile(p StyleProfileRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexStyleProfile(p); err != nil {
			log.Printf("search: index style profile %s: %v", p.ID, err)
		}
	}()
}

// DeleteArticle removes an article from the search index (fire-and-forget).
func (s *Service) DeleteArticle(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteArticle(id); err != nil {
			log.Printf("search: delete article %s: %v", id, err)
		}
	}()
}

// DeleteOutline removes an outline from the search index (fire-and-forget).
func (s *Service) DeleteOutline(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteOutline(id); err != nil {
			log.Printf("search: delete outline %s: %v", id, err)
		}
	}()
}

// DeleteStyleProfile removes a style profile from the search index (fire-and-forget).
func (s *Service) DeleteStyleProfile(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteStyleProfile(id); err != nil {
			log.Printf("search: delete style profile %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	articles, outlines, profiles, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexArticles(articles); err != nil {
		log.Printf("search: reindex articles: %v", err)
	}
	if err := s.meili.IndexOutlines(outlines); err != nil {
		log.Printf("search: reindex outlines: %v", err)
	}
	if err := s.meili.IndexStyleProfiles(profiles); err != nil {
		log.Printf("search: reindex style profiles: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
