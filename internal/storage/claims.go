package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Claim row statuses. A pending row means a finalization run is (or was)
// in flight; completed means the draft has been materialized.
const (
	claimStatusPending   = "pending"
	claimStatusCompleted = "completed"
)

// ClaimDraft atomically reserves a draft id for the calling run.
//
// The conditional insert is the whole idempotency gate: of any number of
// concurrent claims for the same draft id, exactly one inserts a row and
// proceeds; every other caller sees zero rows affected and gets
// ErrDraftAlreadyClaimed. There is no separate check-then-act window.
//
// A crashed run leaves a pending row behind, which keeps blocking retries
// until CleanupStaleClaims reclaims it. That bias is deliberate: a duplicate
// materialization is worse than a delayed retry.
func (db *DB) ClaimDraft(ctx context.Context, draftID string, userID uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO draft_claims (draft_id, user_id, status, claimed_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (draft_id) DO NOTHING`,
		draftID, userID, claimStatusPending,
	)
	if err != nil {
		return fmt.Errorf("storage: claim draft: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDraftAlreadyClaimed
	}
	return nil
}

// CompleteClaim marks a previously reserved claim as materialized.
func (db *DB) CompleteClaim(ctx context.Context, draftID string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE draft_claims SET status = $1, updated_at = now()
		 WHERE draft_id = $2 AND status = $3`,
		claimStatusCompleted, draftID, claimStatusPending,
	)
	if err != nil {
		return fmt.Errorf("storage: complete claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: complete claim: draft %s not pending", draftID)
	}
	return nil
}

// ReleaseClaim removes a pending claim so the draft can be retried after a
// hard failure. Completed claims are never released.
func (db *DB) ReleaseClaim(ctx context.Context, draftID string) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM draft_claims WHERE draft_id = $1 AND status = $2`,
		draftID, claimStatusPending,
	)
	if err != nil {
		return fmt.Errorf("storage: release claim: %w", err)
	}
	return nil
}

// HasCompletedClaim reports whether a draft id has already been materialized.
func (db *DB) HasCompletedClaim(ctx context.Context, draftID string) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM draft_claims WHERE draft_id = $1 AND status = $2)`,
		draftID, claimStatusCompleted,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: check completed claim: %w", err)
	}
	return exists, nil
}

// CleanupStaleClaims removes pending claims older than ttl — runs that
// crashed between reserving the claim and finishing. Returns the number of
// reclaimed rows.
func (db *DB) CleanupStaleClaims(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM draft_claims
		 WHERE status = $1 AND updated_at < now() - ($2 * interval '1 microsecond')`,
		claimStatusPending, ttl.Microseconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage: cleanup stale claims: %w", err)
	}
	return tag.RowsAffected(), nil
}
