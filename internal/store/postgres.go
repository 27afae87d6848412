package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Users

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, role, is_email_verified, verification_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.DisplayName, user.Email, user.PasswordHash, user.Role, user.IsEmailVerified, user.VerificationToken)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified
		FROM users WHERE id=$1 AND deactivated_at IS NULL
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, is_email_verified
		FROM users WHERE LOWER(email)=LOWER($1) AND deactivated_at IS NULL
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.IsEmailVerified)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) UpdateUserVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET verification_token=$2, verification_expires_at=$3, updated_at=NOW()
		WHERE id=$1
	`, userID, token, expiresAt)
	if err != nil {
		return fmt.Errorf("update verification token: %w", err)
	}
	return nil
}

func (s *PostgresStore) VerifyUserEmail(ctx context.Context, token string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified=TRUE, verification_token='', verification_expires_at=NULL, updated_at=NOW()
		WHERE verification_token=$1 AND verification_expires_at > NOW()
	`, token)
	if err != nil {
		return fmt.Errorf("verify email: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("verify email rows: %w", err)
	}
	if affected == 0 {
		return errors.New("invalid or expired verification token")
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark reset used: %w", err)
	}
	return nil
}

// Refresh sessions (Postgres fallback when Redis is not configured)

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, user User, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, user.ID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.email, u.role
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.Email, &user.Role)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Teams

func (s *PostgresStore) GetTeam(ctx context.Context, teamID string) (Team, error) {
	var team Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name, slug, created_at, updated_at FROM teams WHERE id=$1`, teamID).
		Scan(&team.ID, &team.Name, &team.Slug, &team.CreatedAt, &team.UpdatedAt)
	if err != nil {
		return Team{}, err
	}
	return team, nil
}

func (s *PostgresStore) InsertTeam(ctx context.Context, team Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, name, slug) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, team.ID, team.Name, team.Slug)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddTeamMember(ctx context.Context, teamID, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_memberships (team_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, teamID, userID, role)
	if err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

// TeamRole returns the member's role in the team, or "" for non-members.
func (s *PostgresStore) TeamRole(ctx context.Context, teamID, userID string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM team_memberships WHERE team_id=$1 AND user_id=$2
	`, teamID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read team role: %w", err)
	}
	return role, nil
}

func (s *PostgresStore) ListTeamsForUser(ctx context.Context, userID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.slug, t.created_at, t.updated_at
		FROM teams t
		JOIN team_memberships tm ON tm.team_id = t.id
		WHERE tm.user_id = $1
		ORDER BY t.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var team Team
		if err := rows.Scan(&team.ID, &team.Name, &team.Slug, &team.CreatedAt, &team.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, team)
	}
	return items, rows.Err()
}
