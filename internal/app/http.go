package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/auth"
	"github.com/KarryViber/Neolish-sub001/internal/export"
	"github.com/KarryViber/Neolish-sub001/internal/lifecycle"
	"github.com/KarryViber/Neolish-sub001/internal/rbac"
	"github.com/KarryViber/Neolish-sub001/internal/search"
	"github.com/KarryViber/Neolish-sub001/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/verify-email" {
		s.handleAuthVerifyEmail(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password/request" {
		s.handleAuthRequestReset(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/reset-password" {
		s.handleAuthResetPassword(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"email":         session.Email,
			"role":          session.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"accessToken":  session.Token,
			"refreshToken": session.RefreshToken,
			"userId":       session.UserID,
			"userName":     session.UserName,
			"role":         session.Role,
			"expiresAt":    session.ExpiresAt.Unix(),
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		session := Session{}
		if token := bearerToken(r); token != "" {
			if parsed, err := s.service.SessionFromToken(r.Context(), token); err == nil {
				session = parsed
			}
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), session, body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/teams" {
		teams, err := s.service.ListTeams(r.Context(), session.UserID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/articles/queue-status" {
		snapshot, err := s.service.QueueStatus(r.Context(), strings.TrimSpace(r.URL.Query().Get("teamId")))
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/purposes" {
		purposes, err := s.service.ListWritingPurposes(r.Context())
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"purposes": purposes})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/images/generate" {
		if !s.service.Can(session.Role, rbac.ActionGenerate) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var input GenerateImageInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.GenerateImage(r.Context(), session, input)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, payload)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) >= 2 && parts[0] == "api" {
		switch parts[1] {
		case "articles":
			s.handleArticles(w, r, session, parts)
			return
		case "outlines":
			s.handleOutlines(w, r, session, parts)
			return
		case "style-profiles":
			s.handleStyleProfiles(w, r, session, parts)
			return
		case "merchandise":
			s.handleMerchandise(w, r, session, parts)
			return
		case "audiences":
			s.handleAudiences(w, r, session, parts)
			return
		case "images":
			if len(parts) == 4 && parts[2] == "jobs" && r.Method == http.MethodGet {
				payload, err := s.service.GetImageJob(r.Context(), parts[3])
				if err != nil {
					s.writeMapped(w, err)
					return
				}
				writeJSON(w, http.StatusOK, payload)
				return
			}
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleArticles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionGenerate) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input SubmitArticlesInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.SubmitArticles(r.Context(), session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, payload)
			return
		case http.MethodGet:
			filter, err := articleFilterFromQuery(r)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			payload, err := s.service.ListArticles(r.Context(), session, filter)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	articleID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetArticle(r.Context(), articleID)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodPut:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input UpdateArticleInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.UpdateArticle(r.Context(), articleID, session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			if err := s.service.DeleteArticle(r.Context(), articleID); err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 4 {
		switch {
		case parts[3] == "status" && r.Method == http.MethodPut:
			var body struct {
				Status string `json:"status"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			action := rbac.ActionWrite
			if body.Status == string(lifecycle.StatusPublished) || body.Status == string(lifecycle.StatusPendingPublish) {
				action = rbac.ActionPublish
			}
			if !s.service.Can(session.Role, action) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.UpdateArticleStatus(r.Context(), articleID, body.Status)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case parts[3] == "requeue" && r.Method == http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionGenerate) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			payload, err := s.service.RequeueArticle(r.Context(), articleID, session)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusAccepted, payload)
			return
		case parts[3] == "history" && r.Method == http.MethodGet:
			limit := 0
			if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
				limit, _ = strconv.Atoi(raw)
			}
			payload, err := s.service.ArticleHistory(r.Context(), articleID, limit)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		case parts[3] == "export" && r.Method == http.MethodGet:
			s.handleExport(w, r, articleID)
			return
		}
	}

	if len(parts) == 5 && parts[3] == "versions" && r.Method == http.MethodGet {
		payload, err := s.service.ArticleVersion(r.Context(), articleID, parts[4])
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, articleID string) {
	format := export.Format(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))))
	if format == "" {
		format = export.FormatPDF
	}
	result, err := s.service.ExportArticle(r.Context(), articleID, format)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session) {
	query := search.Query{
		Text:         strings.TrimSpace(r.URL.Query().Get("q")),
		TeamID:       strings.TrimSpace(r.URL.Query().Get("teamId")),
		FilterType:   search.ResultType(strings.TrimSpace(r.URL.Query().Get("type"))),
		FilterStatus: strings.TrimSpace(r.URL.Query().Get("status")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		query.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		query.Offset = parsed
	}
	response, err := s.service.SearchContent(r.Context(), session, query)
	if err != nil {
		s.writeMapped(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func articleFilterFromQuery(r *http.Request) (store.ArticleFilter, error) {
	filter := store.ArticleFilter{
		TeamID:     strings.TrimSpace(r.URL.Query().Get("teamId")),
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		SearchTerm: strings.TrimSpace(r.URL.Query().Get("searchTerm")),
		Purpose:    strings.TrimSpace(r.URL.Query().Get("purpose")),
		Audience:   strings.TrimSpace(r.URL.Query().Get("audience")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return filter, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page must be an integer", nil)
		}
		filter.Page = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return filter, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
		}
		filter.Limit = parsed
	}
	return filter, nil
}

func (s *HTTPServer) handleOutlines(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input OutlineInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateOutline(r.Context(), session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case http.MethodGet:
			items, err := s.service.ListOutlines(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("teamId")))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"outlines": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	outlineID := parts[2]
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetOutline(r.Context(), outlineID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var input OutlineInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateOutline(r.Context(), outlineID, input)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteOutline(r.Context(), outlineID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleStyleProfiles(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input StyleProfileInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateStyleProfile(r.Context(), session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case http.MethodGet:
			items, err := s.service.ListStyleProfiles(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("teamId")))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"styleProfiles": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	profileID := parts[2]
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetStyleProfile(r.Context(), profileID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var input StyleProfileInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateStyleProfile(r.Context(), profileID, input)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteStyleProfile(r.Context(), profileID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleMerchandise(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input MerchandiseInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateMerchandise(r.Context(), session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case http.MethodGet:
			items, err := s.service.ListMerchandise(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("teamId")))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"merchandise": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	merchandiseID := parts[2]
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetMerchandise(r.Context(), merchandiseID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var input MerchandiseInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateMerchandise(r.Context(), merchandiseID, input)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteMerchandise(r.Context(), merchandiseID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAudiences(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodPost:
			if !s.service.Can(session.Role, rbac.ActionWrite) {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
				return
			}
			var input AudienceInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			payload, err := s.service.CreateAudience(r.Context(), session, input)
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, payload)
			return
		case http.MethodGet:
			items, err := s.service.ListAudiences(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("teamId")))
			if err != nil {
				s.writeMapped(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"audiences": items})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	if len(parts) != 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	audienceID := parts[2]
	switch r.Method {
	case http.MethodGet:
		payload, err := s.service.GetAudience(r.Context(), audienceID)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPut:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		var input AudienceInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.UpdateAudience(r.Context(), audienceID, input)
		if err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodDelete:
		if !s.service.Can(session.Role, rbac.ActionWrite) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
			return
		}
		if err := s.service.DeleteAudience(r.Context(), audienceID); err != nil {
			s.writeMapped(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) writeMapped(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
