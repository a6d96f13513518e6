package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/halcyonhq/halcyon/internal/model"
)

// CreateUser inserts a user and returns it with defaults filled in.
func (db *DB) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO users (id, email, name, api_key_hash, wake_hour, sleep_hour, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.Name, u.APIKeyHash, u.WakeHour, u.SleepHour, u.CreatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("storage: create user: %w", err)
	}
	return u, nil
}

// GetUserByEmail looks up a user by email. Returns ErrNotFound when absent.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, name, api_key_hash, wake_hour, sleep_hour, created_at
		 FROM users WHERE email = $1`, email,
	).Scan(&u.ID, &u.Email, &u.Name, &u.APIKeyHash, &u.WakeHour, &u.SleepHour, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("storage: get user by email: %w", err)
	}
	return u, nil
}

// GetUser looks up a user by id. Returns ErrNotFound when absent.
func (db *DB) GetUser(ctx context.Context, id uuid.UUID) (model.User, error) {
	var u model.User
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, name, api_key_hash, wake_hour, sleep_hour, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.APIKeyHash, &u.WakeHour, &u.SleepHour, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("storage: get user: %w", err)
	}
	return u, nil
}

// UpdateUserSchedule sets the wake/sleep hours on a user row.
func (db *DB) UpdateUserSchedule(ctx context.Context, userID uuid.UUID, wakeHour, sleepHour int) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE users SET wake_hour = $1, sleep_hour = $2 WHERE id = $3`,
		wakeHour, sleepHour, userID,
	)
	if err != nil {
		return fmt.Errorf("storage: update user schedule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: update user schedule: %w", ErrNotFound)
	}
	return nil
}

// UpsertOnboardingPhase records the user's onboarding phase. Idempotent by
// construction; calling it again with the same phase is a no-op update.
func (db *DB) UpsertOnboardingPhase(ctx context.Context, userID uuid.UUID, phase string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO onboarding_states (user_id, phase, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET phase = EXCLUDED.phase, updated_at = now()`,
		userID, phase,
	)
	if err != nil {
		return fmt.Errorf("storage: upsert onboarding phase: %w", err)
	}
	return nil
}

// GetOnboardingPhase returns the user's onboarding phase, or ErrNotFound if
// onboarding has never been recorded.
func (db *DB) GetOnboardingPhase(ctx context.Context, userID uuid.UUID) (string, error) {
	var phase string
	err := db.pool.QueryRow(ctx,
		`SELECT phase FROM onboarding_states WHERE user_id = $1`, userID,
	).Scan(&phase)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: get onboarding phase: %w", err)
	}
	return phase, nil
}
