package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/export"
	"github.com/KarryViber/Neolish-sub001/internal/gitrepo"
	"github.com/KarryViber/Neolish-sub001/internal/search"
)

type GenerateImageInput struct {
	Prompt         string `json:"prompt"`
	PlaceholderTag string `json:"placeholderTag"`
	ArticleID      string `json:"articleId"`
	TeamID         string `json:"teamId"`
}

// ArticleHistory lists the git revisions committed for an article.
func (s *Service) ArticleHistory(ctx context.Context, articleID string, limit int) (map[string]any, error) {
	if s.git == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history is not configured", nil)
	}
	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	commits, err := s.git.History(articleID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(commits))
	for _, commit := range commits {
		items = append(items, map[string]any{
			"hash":      commit.Hash,
			"message":   commit.Message,
			"author":    commit.Author,
			"createdAt": commit.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"articleId": article.ID,
		"commits":   items,
	}, nil
}

// ArticleVersion returns the article content at a specific revision.
func (s *Service) ArticleVersion(ctx context.Context, articleID, hash string) (map[string]any, error) {
	if s.git == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Revision history is not configured", nil)
	}
	if _, err := s.store.GetArticle(ctx, articleID); err != nil {
		return nil, err
	}
	content, err := s.git.GetContentByHash(articleID, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return versionPayload(articleID, hash, content), nil
}

func versionPayload(articleID, hash string, content gitrepo.Content) map[string]any {
	payload := map[string]any{
		"articleId": articleID,
		"hash":      hash,
		"title":     content.Title,
		"content":   content.Markdown,
		"status":    content.Status,
	}
	if content.AnalystNotes != "" {
		payload["analystNotes"] = content.AnalystNotes
	}
	if len(content.StructuredContent) > 0 {
		var structured any
		if err := json.Unmarshal(content.StructuredContent, &structured); err == nil {
			payload["structuredContent"] = structured
		}
	}
	return payload
}

// ExportArticle renders an article to PDF or DOCX.
func (s *Service) ExportArticle(ctx context.Context, articleID string, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	if format != export.FormatPDF && format != export.FormatDOCX {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be pdf or docx", nil)
	}
	result, err := s.export.Export(ctx, export.Request{ArticleID: articleID, Format: format})
	if err != nil {
		switch {
		case errors.Is(err, export.ErrContentUnavailable):
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Article has no exportable content", nil)
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
		}
		return nil, err
	}
	return result, nil
}

// GenerateImage triggers the image workflow for an article placeholder.
func (s *Service) GenerateImage(ctx context.Context, session Session, input GenerateImageInput) (map[string]any, error) {
	if s.images == nil {
		return nil, domainError(http.StatusServiceUnavailable, "IMAGES_UNAVAILABLE", "Image generation is not configured", nil)
	}
	if !s.cfg.DifyImageConfigured() {
		return nil, domainError(http.StatusInternalServerError, "DIFY_NOT_CONFIGURED", "Image generation is not configured", nil)
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "prompt is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	job, err := s.images.Trigger(ctx, input.TeamID, session.UserID, input.ArticleID, input.Prompt, input.PlaceholderTag, session.Email)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"jobId":          job.ID,
		"status":         job.Status,
		"placeholderTag": job.PlaceholderTag,
	}, nil
}

func (s *Service) GetImageJob(ctx context.Context, jobID string) (map[string]any, error) {
	if s.images == nil {
		return nil, domainError(http.StatusServiceUnavailable, "IMAGES_UNAVAILABLE", "Image generation is not configured", nil)
	}
	job, err := s.images.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	payload := map[string]any{
		"jobId":          job.ID,
		"teamId":         job.TeamID,
		"articleId":      job.ArticleID,
		"status":         job.Status,
		"placeholderTag": job.PlaceholderTag,
		"createdAt":      job.CreatedAt.Format(time.RFC3339),
		"updatedAt":      job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ImageBase64 != "" {
		payload["imageBase64"] = job.ImageBase64
	}
	if job.ObjectKey != "" {
		payload["objectKey"] = job.ObjectKey
	}
	if job.ErrorMessage != "" {
		payload["error"] = job.ErrorMessage
	}
	return payload, nil
}

// SearchContent runs a team-scoped full-text search.
func (s *Service) SearchContent(ctx context.Context, session Session, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if strings.TrimSpace(q.TeamID) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, q.TeamID, session.UserID); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(q), nil
}
