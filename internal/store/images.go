package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) InsertImageJob(ctx context.Context, job ImageGenerationJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO image_generation_jobs (id, team_id, user_id, article_id, status, prompt, placeholder_tag)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.TeamID, job.UserID, job.ArticleID, job.Status, job.Prompt, job.PlaceholderTag)
	if err != nil {
		return fmt.Errorf("insert image job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImageJob(ctx context.Context, jobID string) (ImageGenerationJob, error) {
	var job ImageGenerationJob
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, user_id, article_id, status, prompt, placeholder_tag,
			image_base64, object_key, error_message, created_at, updated_at
		FROM image_generation_jobs WHERE id=$1
	`, jobID).Scan(&job.ID, &job.TeamID, &job.UserID, &job.ArticleID, &job.Status, &job.Prompt,
		&job.PlaceholderTag, &job.ImageBase64, &job.ObjectKey, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return ImageGenerationJob{}, err
	}
	return job, nil
}

func (s *PostgresStore) UpdateImageJobStatus(ctx context.Context, jobID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE image_generation_jobs SET status=$2, updated_at=NOW() WHERE id=$1
	`, jobID, status)
	if err != nil {
		return fmt.Errorf("update image job status: %w", err)
	}
	return nil
}

func (s *PostgresStore) CompleteImageJob(ctx context.Context, jobID, imageBase64, objectKey string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE image_generation_jobs
		SET status='succeeded', image_base64=$2, object_key=$3, error_message='', updated_at=NOW()
		WHERE id=$1
	`, jobID, imageBase64, objectKey)
	if err != nil {
		return fmt.Errorf("complete image job: %w", err)
	}
	return nil
}

func (s *PostgresStore) FailImageJob(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE image_generation_jobs
		SET status='failed', error_message=$2, updated_at=NOW()
		WHERE id=$1
	`, jobID, message)
	if err != nil {
		return fmt.Errorf("fail image job: %w", err)
	}
	return nil
}
