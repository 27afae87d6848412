package export

import (
	"context"
	"fmt"
	"html/template"
	"strings"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetArticleForExport(ctx context.Context, articleID string) (ArticleInfo, error)
	GetTeamForExport(ctx context.Context, teamID string) (TeamInfo, error)
}

// Service provides article export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	article, err := s.store.GetArticleForExport(ctx, req.ArticleID)
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}

	team, err := s.store.GetTeamForExport(ctx, article.TeamID)
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}

	// Prefer the structured body; fall back to the raw markdown column.
	contentHTML := TiptapToHTML(article.StructuredContent)
	if strings.TrimSpace(contentHTML) == "" {
		contentHTML = MarkdownFallbackHTML(article.Content)
	}
	if strings.TrimSpace(contentHTML) == "" {
		return nil, ErrContentUnavailable
	}

	data := TemplateData{
		Title:          article.Title,
		ContentHTML:    template.HTML(contentHTML),
		Author:         article.AuthorName,
		TeamName:       team.Name,
		Status:         article.Status,
		WritingPurpose: article.WritingPurpose,
		UpdatedAt:      article.UpdatedAt,
	}

	html, err := RenderArticleHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, article.Title)
	case FormatDOCX:
		return exportDOCX(html, article.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
