package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/older-wiser/apiserver/types"
)

// ActivityFilter narrows an activity listing. Zero value means no filter.
type ActivityFilter struct {
	// UserCreated selects curated (false) or user-created (true) entries
	// when non-nil.
	UserCreated *bool
	// OwnerEmail restricts to activities owned by this email when set.
	OwnerEmail string
}

// ActivityRepository handles persistence for activities.
type ActivityRepository struct {
	db *sql.DB
}

func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, title, images, duration, category, description, difficulty, materials, steps, is_user_created, created_by, email, created_at, updated_at`

func scanActivity(row interface{ Scan(...any) error }) (types.Activity, error) {
	var activity types.Activity
	var imagesJSON, materialsJSON, stepsJSON []byte
	var createdBy sql.NullInt64
	var email sql.NullString
	err := row.Scan(
		&activity.ID,
		&activity.Title,
		&imagesJSON,
		&activity.Duration,
		&activity.Category,
		&activity.Description,
		&activity.Difficulty,
		&materialsJSON,
		&stepsJSON,
		&activity.IsUserCreated,
		&createdBy,
		&email,
		&activity.CreatedAt,
		&activity.UpdatedAt,
	)
	if err != nil {
		return types.Activity{}, err
	}

	_ = json.Unmarshal(imagesJSON, &activity.Images)
	_ = json.Unmarshal(materialsJSON, &activity.Materials)
	_ = json.Unmarshal(stepsJSON, &activity.Steps)
	if activity.Materials == nil {
		activity.Materials = []string{}
	}
	if activity.Steps == nil {
		activity.Steps = []string{}
	}
	if createdBy.Valid {
		activity.CreatedBy = createdBy.Int64
	}
	if email.Valid {
		activity.Email = email.String
	}
	return activity, nil
}

// List returns activities matching the filter, newest first.
func (r *ActivityRepository) List(ctx context.Context, filter ActivityFilter) ([]types.Activity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM activities`
	args := make([]any, 0, 2)
	where := ""
	if filter.UserCreated != nil {
		args = append(args, *filter.UserCreated)
		where = " WHERE is_user_created = $1"
	}
	if filter.OwnerEmail != "" {
		args = append(args, filter.OwnerEmail)
		if where == "" {
			where = " WHERE email = $1"
		} else {
			where += " AND email = $2"
		}
	}
	query += where + " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := make([]types.Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}

func (r *ActivityRepository) Get(ctx context.Context, id int64) (types.Activity, error) {
	const query = `
		SELECT ` + activityColumns + `
		FROM activities
		WHERE id = $1`
	activity, err := scanActivity(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Activity{}, ErrNotFound
		}
		return types.Activity{}, err
	}
	return activity, nil
}

func (r *ActivityRepository) Create(ctx context.Context, activity types.Activity) (types.Activity, error) {
	now := time.Now()
	activity.CreatedAt = now
	activity.UpdatedAt = now

	imagesJSON, materialsJSON, stepsJSON, err := marshalActivityLists(activity)
	if err != nil {
		return types.Activity{}, err
	}

	const query = `
		INSERT INTO activities (title, images, duration, category, description, difficulty, materials, steps, is_user_created, created_by, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		activity.Title,
		imagesJSON,
		activity.Duration,
		activity.Category,
		activity.Description,
		activity.Difficulty,
		materialsJSON,
		stepsJSON,
		activity.IsUserCreated,
		nullableID(activity.CreatedBy),
		nullableString(activity.Email),
		activity.CreatedAt,
		activity.UpdatedAt,
	).Scan(&activity.ID); err != nil {
		return types.Activity{}, err
	}
	return activity, nil
}

func (r *ActivityRepository) Update(ctx context.Context, activity types.Activity) (types.Activity, error) {
	activity.UpdatedAt = time.Now()

	imagesJSON, materialsJSON, stepsJSON, err := marshalActivityLists(activity)
	if err != nil {
		return types.Activity{}, err
	}

	const query = `
		UPDATE activities
		SET title = $1,
			images = $2,
			duration = $3,
			category = $4,
			description = $5,
			difficulty = $6,
			materials = $7,
			steps = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		activity.Title,
		imagesJSON,
		activity.Duration,
		activity.Category,
		activity.Description,
		activity.Difficulty,
		materialsJSON,
		stepsJSON,
		activity.UpdatedAt,
		activity.ID,
	)
	if err != nil {
		return types.Activity{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Activity{}, err
	}
	if affected == 0 {
		return types.Activity{}, ErrNotFound
	}
	return activity, nil
}

func (r *ActivityRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM activities WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the total number of activities.
func (r *ActivityRepository) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM activities`
	var total int
	if err := r.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func marshalActivityLists(activity types.Activity) (images, materials, steps []byte, err error) {
	if images, err = json.Marshal(activity.Images); err != nil {
		return nil, nil, nil, err
	}
	if activity.Materials == nil {
		activity.Materials = []string{}
	}
	if materials, err = json.Marshal(activity.Materials); err != nil {
		return nil, nil, nil, err
	}
	if activity.Steps == nil {
		activity.Steps = []string{}
	}
	if steps, err = json.Marshal(activity.Steps); err != nil {
		return nil, nil, nil, err
	}
	return images, materials, steps, nil
}

func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
