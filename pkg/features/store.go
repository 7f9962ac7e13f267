// Package features implements the feature tracker the agent consults to
// decide what to build next: a prioritized queue of project features with
// pending/in-progress/passing states, plus tool adapters that expose the
// tracker to the conversation loop.
package features

import (
	"context"
	"errors"

	"github.com/nstogner/autodev/pkg/domain"
)

// ErrNotFound is returned when a feature ID does not exist.
var ErrNotFound = errors.New("feature not found")

// ErrNoPending is returned by NextPending when the queue is drained.
var ErrNoPending = errors.New("no pending features")

// Store manages the persistence of project features.
type Store interface {
	// CreateBulk inserts features in order and returns their assigned IDs.
	// Priorities are assigned after the current maximum, preserving input
	// order, for any feature whose Priority is zero.
	CreateBulk(ctx context.Context, features []domain.Feature) ([]int64, error)

	// Get retrieves a feature by ID.
	Get(ctx context.Context, id int64) (*domain.Feature, error)

	// Stats returns passing/in-progress/total counts.
	Stats(ctx context.Context) (domain.FeatureStats, error)

	// NextPending returns the pending feature with the lowest priority
	// value. Returns ErrNoPending when none remain.
	NextPending(ctx context.Context) (*domain.Feature, error)

	// ForRegression returns up to limit random passing features, for
	// re-verification.
	ForRegression(ctx context.Context, limit int) ([]domain.Feature, error)

	// MarkPassing transitions a feature to the passing state.
	MarkPassing(ctx context.Context, id int64) error

	// MarkInProgress transitions a feature to the in-progress state.
	MarkInProgress(ctx context.Context, id int64) error

	// Skip requeues a feature behind the current maximum priority and
	// returns its new priority. The feature goes back to pending.
	Skip(ctx context.Context, id int64) (int64, error)
}
