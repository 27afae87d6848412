package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/KarryViber/Neolish-sub001/internal/search"
	"github.com/KarryViber/Neolish-sub001/internal/store"
	"github.com/KarryViber/Neolish-sub001/internal/util"
)

type OutlineInput struct {
	Title          string `json:"title"`
	Content        string `json:"content"`
	StyleProfileID string `json:"styleProfileId"`
	TeamID         string `json:"teamId"`
}

type StyleProfileInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Profile     json.RawMessage `json:"profile"`
	TeamID      string          `json:"teamId"`
}

type MerchandiseInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	TeamID      string `json:"teamId"`
}

type AudienceInput struct {
	Name       string          `json:"name"`
	Attributes json.RawMessage `json:"attributes"`
	TeamID     string          `json:"teamId"`
}

// Outlines

func (s *Service) CreateOutline(ctx context.Context, session Session, input OutlineInput) (map[string]any, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	outline := store.Outline{
		ID:             util.NewID("out"),
		TeamID:         input.TeamID,
		UserID:         session.UserID,
		Title:          strings.TrimSpace(input.Title),
		Content:        input.Content,
		StyleProfileID: strings.TrimSpace(input.StyleProfileID),
	}
	if err := s.store.InsertOutline(ctx, outline); err != nil {
		return nil, err
	}
	s.indexOutline(outline)
	return outlinePayload(outline), nil
}

func (s *Service) ListOutlines(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, teamID, session.UserID); err != nil {
		return nil, err
	}
	outlines, err := s.store.ListOutlines(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(outlines))
	for _, outline := range outlines {
		items = append(items, outlinePayload(outline))
	}
	return items, nil
}

func (s *Service) GetOutline(ctx context.Context, outlineID string) (map[string]any, error) {
	outline, err := s.store.GetOutline(ctx, outlineID)
	if err != nil {
		return nil, err
	}
	return outlinePayload(outline), nil
}

func (s *Service) UpdateOutline(ctx context.Context, outlineID string, input OutlineInput) (map[string]any, error) {
	outline, err := s.store.GetOutline(ctx, outlineID)
	if err != nil {
		return nil, err
	}
	title := firstNonBlank(strings.TrimSpace(input.Title), outline.Title)
	content := input.Content
	if content == "" {
		content = outline.Content
	}
	styleProfileID := firstNonBlank(strings.TrimSpace(input.StyleProfileID), outline.StyleProfileID)

	if err := s.store.UpdateOutline(ctx, outlineID, title, content, styleProfileID); err != nil {
		return nil, err
	}
	outline.Title = title
	outline.Content = content
	outline.StyleProfileID = styleProfileID
	s.indexOutline(outline)
	return outlinePayload(outline), nil
}

func (s *Service) DeleteOutline(ctx context.Context, outlineID string) error {
	if _, err := s.store.GetOutline(ctx, outlineID); err != nil {
		return err
	}
	if err := s.store.DeleteOutline(ctx, outlineID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteOutline(outlineID)
	}
	return nil
}

// Style profiles

func (s *Service) CreateStyleProfile(ctx context.Context, session Session, input StyleProfileInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	profile := store.StyleProfile{
		ID:          util.NewID("stp"),
		TeamID:      input.TeamID,
		UserID:      session.UserID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Profile:     normalizeJSON(input.Profile),
	}
	if err := s.store.InsertStyleProfile(ctx, profile); err != nil {
		return nil, err
	}
	s.indexStyleProfile(profile)
	return styleProfilePayload(profile), nil
}

func (s *Service) ListStyleProfiles(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, teamID, session.UserID); err != nil {
		return nil, err
	}
	profiles, err := s.store.ListStyleProfiles(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(profiles))
	for _, profile := range profiles {
		items = append(items, styleProfilePayload(profile))
	}
	return items, nil
}

func (s *Service) GetStyleProfile(ctx context.Context, profileID string) (map[string]any, error) {
	profile, err := s.store.GetStyleProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	return styleProfilePayload(profile), nil
}

func (s *Service) UpdateStyleProfile(ctx context.Context, profileID string, input StyleProfileInput) (map[string]any, error) {
	profile, err := s.store.GetStyleProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	name := firstNonBlank(strings.TrimSpace(input.Name), profile.Name)
	description := input.Description
	if description == "" {
		description = profile.Description
	}
	profileJSON := normalizeJSON(input.Profile)
	if len(profileJSON) == 0 {
		profileJSON = profile.Profile
	}
	if err := s.store.UpdateStyleProfile(ctx, profileID, name, description, profileJSON); err != nil {
		return nil, err
	}
	profile.Name = name
	profile.Description = description
	profile.Profile = profileJSON
	s.indexStyleProfile(profile)
	return styleProfilePayload(profile), nil
}

func (s *Service) DeleteStyleProfile(ctx context.Context, profileID string) error {
	if _, err := s.store.GetStyleProfile(ctx, profileID); err != nil {
		return err
	}
	if err := s.store.DeleteStyleProfile(ctx, profileID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteStyleProfile(profileID)
	}
	return nil
}

// Merchandise

func (s *Service) CreateMerchandise(ctx context.Context, session Session, input MerchandiseInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	item := store.Merchandise{
		ID:          util.NewID("mch"),
		TeamID:      input.TeamID,
		UserID:      session.UserID,
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
	}
	if err := s.store.InsertMerchandise(ctx, item); err != nil {
		return nil, err
	}
	return merchandisePayload(item), nil
}

func (s *Service) ListMerchandise(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, teamID, session.UserID); err != nil {
		return nil, err
	}
	merchandise, err := s.store.ListMerchandise(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(merchandise))
	for _, item := range merchandise {
		items = append(items, merchandisePayload(item))
	}
	return items, nil
}

func (s *Service) GetMerchandise(ctx context.Context, merchandiseID string) (map[string]any, error) {
	item, err := s.store.GetMerchandise(ctx, merchandiseID)
	if err != nil {
		return nil, err
	}
	return merchandisePayload(item), nil
}

func (s *Service) UpdateMerchandise(ctx context.Context, merchandiseID string, input MerchandiseInput) (map[string]any, error) {
	item, err := s.store.GetMerchandise(ctx, merchandiseID)
	if err != nil {
		return nil, err
	}
	name := firstNonBlank(strings.TrimSpace(input.Name), item.Name)
	description := input.Description
	if description == "" {
		description = item.Description
	}
	if err := s.store.UpdateMerchandise(ctx, merchandiseID, name, description); err != nil {
		return nil, err
	}
	item.Name = name
	item.Description = description
	return merchandisePayload(item), nil
}

func (s *Service) DeleteMerchandise(ctx context.Context, merchandiseID string) error {
	if _, err := s.store.GetMerchandise(ctx, merchandiseID); err != nil {
		return err
	}
	return s.store.DeleteMerchandise(ctx, merchandiseID)
}

// Audiences

func (s *Service) CreateAudience(ctx context.Context, session Session, input AudienceInput) (map[string]any, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	if strings.TrimSpace(input.TeamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, input.TeamID, session.UserID); err != nil {
		return nil, err
	}
	audience := store.Audience{
		ID:         util.NewID("aud"),
		TeamID:     input.TeamID,
		Name:       strings.TrimSpace(input.Name),
		Attributes: normalizeJSON(input.Attributes),
	}
	if err := s.store.InsertAudience(ctx, audience); err != nil {
		return nil, err
	}
	return audiencePayload(audience), nil
}

func (s *Service) ListAudiences(ctx context.Context, session Session, teamID string) ([]map[string]any, error) {
	if strings.TrimSpace(teamID) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "teamId is required", nil)
	}
	if err := s.requireTeamMember(ctx, teamID, session.UserID); err != nil {
		return nil, err
	}
	audiences, err := s.store.ListAudiences(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(audiences))
	for _, audience := range audiences {
		items = append(items, audiencePayload(audience))
	}
	return items, nil
}

func (s *Service) GetAudience(ctx context.Context, audienceID string) (map[string]any, error) {
	audience, err := s.store.GetAudience(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	return audiencePayload(audience), nil
}

func (s *Service) UpdateAudience(ctx context.Context, audienceID string, input AudienceInput) (map[string]any, error) {
	audience, err := s.store.GetAudience(ctx, audienceID)
	if err != nil {
		return nil, err
	}
	name := firstNonBlank(strings.TrimSpace(input.Name), audience.Name)
	attributes := normalizeJSON(input.Attributes)
	if len(attributes) == 0 {
		attributes = audience.Attributes
	}
	if err := s.store.UpdateAudience(ctx, audienceID, name, attributes); err != nil {
		return nil, err
	}
	audience.Name = name
	audience.Attributes = attributes
	return audiencePayload(audience), nil
}

func (s *Service) DeleteAudience(ctx context.Context, audienceID string) error {
	if _, err := s.store.GetAudience(ctx, audienceID); err != nil {
		return err
	}
	return s.store.DeleteAudience(ctx, audienceID)
}

// Writing purposes

func (s *Service) ListWritingPurposes(ctx context.Context) ([]map[string]any, error) {
	purposes, err := s.store.ListWritingPurposes(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(purposes))
	for _, purpose := range purposes {
		items = append(items, map[string]any{
			"id":         purpose.ID,
			"name":       purpose.Name,
			"promptText": purpose.PromptText,
		})
	}
	return items, nil
}

// Payload helpers

func outlinePayload(outline store.Outline) map[string]any {
	return map[string]any{
		"id":             outline.ID,
		"teamId":         outline.TeamID,
		"userId":         outline.UserID,
		"title":          outline.Title,
		"content":        outline.Content,
		"styleProfileId": outline.StyleProfileID,
		"createdAt":      outline.CreatedAt.Format(time.RFC3339),
		"updatedAt":      outline.UpdatedAt.Format(time.RFC3339),
	}
}

func styleProfilePayload(profile store.StyleProfile) map[string]any {
	payload := map[string]any{
		"id":          profile.ID,
		"teamId":      profile.TeamID,
		"userId":      profile.UserID,
		"name":        profile.Name,
		"description": profile.Description,
		"createdAt":   profile.CreatedAt.Format(time.RFC3339),
		"updatedAt":   profile.UpdatedAt.Format(time.RFC3339),
	}
	if len(profile.Profile) > 0 {
		var parsed any
		if err := json.Unmarshal(profile.Profile, &parsed); err == nil {
			payload["profile"] = parsed
		}
	}
	return payload
}

func merchandisePayload(item store.Merchandise) map[string]any {
	return map[string]any{
		"id":          item.ID,
		"teamId":      item.TeamID,
		"userId":      item.UserID,
		"name":        item.Name,
		"description": item.Description,
		"createdAt":   item.CreatedAt.Format(time.RFC3339),
		"updatedAt":   item.UpdatedAt.Format(time.RFC3339),
	}
}

func audiencePayload(audience store.Audience) map[string]any {
	payload := map[string]any{
		"id":        audience.ID,
		"teamId":    audience.TeamID,
		"name":      audience.Name,
		"createdAt": audience.CreatedAt.Format(time.RFC3339),
		"updatedAt": audience.UpdatedAt.Format(time.RFC3339),
	}
	if len(audience.Attributes) > 0 {
		var parsed any
		if err := json.Unmarshal(audience.Attributes, &parsed); err == nil {
			payload["attributes"] = parsed
		}
	}
	return payload
}

func (s *Service) indexOutline(outline store.Outline) {
	if s.search == nil {
		return
	}
	s.search.IndexOutline(search.OutlineRecord{
		ID:      outline.ID,
		Title:   outline.Title,
		Content: outline.Content,
		TeamID:  outline.TeamID,
	})
}

func (s *Service) indexStyleProfile(profile store.StyleProfile) {
	if s.search == nil {
		return
	}
	s.search.IndexStyleProfile(search.StyleProfileRecord{
		ID:          profile.ID,
		Name:        profile.Name,
		Description: profile.Description,
		TeamID:      profile.TeamID,
	})
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// normalizeJSON re-encodes raw JSON compactly and drops invalid input.
func normalizeJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	encoded, err := json.Marshal(parsed)
	if err != nil {
		return nil
	}
	return encoded
}
