package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Outlines

func (s *PostgresStore) InsertOutline(ctx context.Context, item Outline) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outlines (id, team_id, user_id, title, content, style_profile_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.TeamID, item.UserID, item.Title, item.Content, item.StyleProfileID)
	if err != nil {
		return fmt.Errorf("insert outline: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOutline(ctx context.Context, outlineID string) (Outline, error) {
	var item Outline
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, title, content, style_profile_id, created_at, updated_at
		FROM outlines WHERE id=$1
	`, outlineID).Scan(&item.ID, &item.TeamID, &item.UserID, &item.Title, &item.Content,
		&item.StyleProfileID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Outline{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListOutlines(ctx context.Context, teamID string) ([]Outline, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, user_id, title, content, style_profile_id, created_at, updated_at
		FROM outlines WHERE team_id=$1 ORDER BY updated_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list outlines: %w", err)
	}
	defer rows.Close()

	items := make([]Outline, 0)
	for rows.Next() {
		var item Outline
		if err := rows.Scan(&item.ID, &item.TeamID, &item.UserID, &item.Title, &item.Content,
			&item.StyleProfileID, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan outline: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateOutline(ctx context.Context, outlineID, title, content, styleProfileID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outlines SET title=$2, content=$3, style_profile_id=$4, updated_at=NOW() WHERE id=$1
	`, outlineID, title, content, styleProfileID)
	if err != nil {
		return fmt.Errorf("update outline: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOutline(ctx context.Context, outlineID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM outlines WHERE id=$1`, outlineID)
	if err != nil {
		return fmt.Errorf("delete outline: %w", err)
	}
	return nil
}

// Style profiles

func (s *PostgresStore) InsertStyleProfile(ctx context.Context, item StyleProfile) error {
	profile := []byte("{}")
	if len(item.Profile) > 0 {
		profile = item.Profile
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO style_profiles (id, team_id, user_id, name, description, profile)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.TeamID, item.UserID, item.Name, item.Description, profile)
	if err != nil {
		return fmt.Errorf("insert style profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetStyleProfile(ctx context.Context, profileID string) (StyleProfile, error) {
	var item StyleProfile
	var profile []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, name, description, profile, created_at, updated_at
		FROM style_profiles WHERE id=$1
	`, profileID).Scan(&item.ID, &item.TeamID, &item.UserID, &item.Name, &item.Description,
		&profile, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return StyleProfile{}, err
	}
	item.Profile = json.RawMessage(profile)
	return item, nil
}

func (s *PostgresStore) ListStyleProfiles(ctx context.Context, teamID string) ([]StyleProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, user_id, name, description, profile, created_at, updated_at
		FROM style_profiles WHERE team_id=$1 ORDER BY updated_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list style profiles: %w", err)
	}
	defer rows.Close()

	items := make([]StyleProfile, 0)
	for rows.Next() {
		var item StyleProfile
		var profile []byte
		if err := rows.Scan(&item.ID, &item.TeamID, &item.UserID, &item.Name, &item.Description,
			&profile, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan style profile: %w", err)
		}
		item.Profile = json.RawMessage(profile)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateStyleProfile(ctx context.Context, profileID, name, description string, profile json.RawMessage) error {
	payload := []byte("{}")
	if len(profile) > 0 {
		payload = profile
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE style_profiles SET name=$2, description=$3, profile=$4, updated_at=NOW() WHERE id=$1
	`, profileID, name, description, payload)
	if err != nil {
		return fmt.Errorf("update style profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStyleProfile(ctx context.Context, profileID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM style_profiles WHERE id=$1`, profileID)
	if err != nil {
		return fmt.Errorf("delete style profile: %w", err)
	}
	return nil
}

// Merchandise

func (s *PostgresStore) InsertMerchandise(ctx context.Context, item Merchandise) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchandise (id, team_id, user_id, name, description)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.TeamID, item.UserID, item.Name, item.Description)
	if err != nil {
		return fmt.Errorf("insert merchandise: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetMerchandise(ctx context.Context, merchandiseID string) (Merchandise, error) {
	var item Merchandise
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, name, description, created_at, updated_at
		FROM merchandise WHERE id=$1
	`, merchandiseID).Scan(&item.ID, &item.TeamID, &item.UserID, &item.Name, &item.Description,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Merchandise{}, err
	}
	return item, nil
}

func (s *PostgresStore) ListMerchandise(ctx context.Context, teamID string) ([]Merchandise, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, user_id, name, description, created_at, updated_at
		FROM merchandise WHERE team_id=$1 ORDER BY updated_at DESC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list merchandise: %w", err)
	}
	defer rows.Close()

	items := make([]Merchandise, 0)
	for rows.Next() {
		var item Merchandise
		if err := rows.Scan(&item.ID, &item.TeamID, &item.UserID, &item.Name, &item.Description,
			&item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan merchandise: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateMerchandise(ctx context.Context, merchandiseID, name, description string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE merchandise SET name=$2, description=$3, updated_at=NOW() WHERE id=$1
	`, merchandiseID, name, description)
	if err != nil {
		return fmt.Errorf("update merchandise: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteMerchandise(ctx context.Context, merchandiseID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM merchandise WHERE id=$1`, merchandiseID)
	if err != nil {
		return fmt.Errorf("delete merchandise: %w", err)
	}
	return nil
}

// Audiences

func (s *PostgresStore) InsertAudience(ctx context.Context, item Audience) error {
	attrs := []byte("{}")
	if len(item.Attributes) > 0 {
		attrs = item.Attributes
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audiences (id, team_id, name, attributes)
		VALUES ($1, $2, $3, $4)
	`, item.ID, item.TeamID, item.Name, attrs)
	if err != nil {
		return fmt.Errorf("insert audience: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAudience(ctx context.Context, audienceID string) (Audience, error) {
	var item Audience
	var attrs []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, name, attributes, created_at, updated_at
		FROM audiences WHERE id=$1
	`, audienceID).Scan(&item.ID, &item.TeamID, &item.Name, &attrs, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Audience{}, err
	}
	item.Attributes = json.RawMessage(attrs)
	return item, nil
}

func (s *PostgresStore) ListAudiences(ctx context.Context, teamID string) ([]Audience, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, team_id, name, attributes, created_at, updated_at
		FROM audiences WHERE team_id=$1 ORDER BY name
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list audiences: %w", err)
	}
	defer rows.Close()

	items := make([]Audience, 0)
	for rows.Next() {
		var item Audience
		var attrs []byte
		if err := rows.Scan(&item.ID, &item.TeamID, &item.Name, &attrs, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan audience: %w", err)
		}
		item.Attributes = json.RawMessage(attrs)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateAudience(ctx context.Context, audienceID, name string, attributes json.RawMessage) error {
	attrs := []byte("{}")
	if len(attributes) > 0 {
		attrs = attributes
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE audiences SET name=$2, attributes=$3, updated_at=NOW() WHERE id=$1
	`, audienceID, name, attrs)
	if err != nil {
		return fmt.Errorf("update audience: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAudience(ctx context.Context, audienceID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM audiences WHERE id=$1`, audienceID)
	if err != nil {
		return fmt.Errorf("delete audience: %w", err)
	}
	return nil
}

// Writing purposes

func (s *PostgresStore) ListWritingPurposes(ctx context.Context) ([]WritingPurpose, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, prompt_text FROM writing_purposes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list writing purposes: %w", err)
	}
	defer rows.Close()

	items := make([]WritingPurpose, 0)
	for rows.Next() {
		var item WritingPurpose
		if err := rows.Scan(&item.ID, &item.Name, &item.PromptText); err != nil {
			return nil, fmt.Errorf("scan writing purpose: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetWritingPurpose(ctx context.Context, purposeID string) (WritingPurpose, error) {
	var item WritingPurpose
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, prompt_text FROM writing_purposes WHERE id=$1
	`, purposeID).Scan(&item.ID, &item.Name, &item.PromptText)
	if err != nil {
		return WritingPurpose{}, err
	}
	return item, nil
}
