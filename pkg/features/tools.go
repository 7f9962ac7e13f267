package features

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nstogner/autodev/pkg/domain"
	"github.com/nstogner/autodev/pkg/tools"
)

// RegisterTools injects the tracker operations into a tool registry. The
// loop engine dispatches to them exactly like the built-in capability set.
func RegisterTools(reg *tools.Registry, store Store) {
	reg.Register(&statsTool{store})
	reg.Register(&nextTool{store})
	reg.Register(&regressionTool{store})
	reg.Register(&markPassingTool{store})
	reg.Register(&skipTool{store})
	reg.Register(&markInProgressTool{store})
	reg.Register(&createBulkTool{store})
}

func toJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func idArg(input map[string]any) (int64, error) {
	switch v := input["id"].(type) {
	case float64:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("argument 'id' is required and must be a number")
	}
}

// --- feature_get_stats ---

type statsTool struct{ store Store }

func (t *statsTool) Name() string { return "feature_get_stats" }

func (t *statsTool) Description() string {
	return "Get progress statistics: passing, in-progress, and total feature counts."
}

func (t *statsTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *statsTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	stats, err := t.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	return toJSON(stats)
}

// --- feature_get_next ---

type nextTool struct{ store Store }

func (t *nextTool) Name() string { return "feature_get_next" }

func (t *nextTool) Description() string {
	return "Get the next pending feature to implement, by priority."
}

func (t *nextTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *nextTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	f, err := t.store.NextPending(ctx)
	if errors.Is(err, ErrNoPending) {
		return `{"message": "No pending features. All features are passing or in progress."}`, nil
	}
	if err != nil {
		return "", err
	}
	return toJSON(f)
}

// --- feature_get_for_regression ---

type regressionTool struct{ store Store }

func (t *regressionTool) Name() string { return "feature_get_for_regression" }

func (t *regressionTool) Description() string {
	return "Get a random sample of passing features to re-verify. Arguments: limit (optional integer)."
}

func (t *regressionTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum number of features to return."},
		},
	}
}

func (t *regressionTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	limit := 3
	if v, ok := input["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	feats, err := t.store.ForRegression(ctx, limit)
	if err != nil {
		return "", err
	}
	return toJSON(feats)
}

// --- feature_mark_passing ---

type markPassingTool struct{ store Store }

func (t *markPassingTool) Name() string { return "feature_mark_passing" }

func (t *markPassingTool) Description() string {
	return "Mark a feature as passing. Arguments: id (integer)."
}

func (t *markPassingTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "integer", "description": "The feature ID."},
		},
		"required": []string{"id"},
	}
}

func (t *markPassingTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	id, err := idArg(input)
	if err != nil {
		return "", err
	}
	if err := t.store.MarkPassing(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"id": %d, "state": %q}`, id, domain.FeatureStatePassing), nil
}

// --- feature_skip ---

type skipTool struct{ store Store }

func (t *skipTool) Name() string { return "feature_skip" }

func (t *skipTool) Description() string {
	return "Skip a feature: requeue it behind every other feature. Arguments: id (integer)."
}

func (t *skipTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "integer", "description": "The feature ID."},
		},
		"required": []string{"id"},
	}
}

func (t *skipTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	id, err := idArg(input)
	if err != nil {
		return "", err
	}
	priority, err := t.store.Skip(ctx, id)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"id": %d, "priority": %d, "state": %q}`, id, priority, domain.FeatureStatePending), nil
}

// --- feature_mark_in_progress ---

type markInProgressTool struct{ store Store }

func (t *markInProgressTool) Name() string { return "feature_mark_in_progress" }

func (t *markInProgressTool) Description() string {
	return "Mark a feature as in progress. Arguments: id (integer)."
}

func (t *markInProgressTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "integer", "description": "The feature ID."},
		},
		"required": []string{"id"},
	}
}

func (t *markInProgressTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	id, err := idArg(input)
	if err != nil {
		return "", err
	}
	if err := t.store.MarkInProgress(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf(`{"id": %d, "state": %q}`, id, domain.FeatureStateInProgress), nil
}

// --- feature_create_bulk ---

type createBulkTool struct{ store Store }

func (t *createBulkTool) Name() string { return "feature_create_bulk" }

func (t *createBulkTool) Description() string {
	return "Create features in bulk. Arguments: features (list of {category, name, description, steps})."
}

func (t *createBulkTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"features": map[string]any{
				"type":        "array",
				"description": "Features to create, in priority order.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"category":    map[string]any{"type": "string"},
						"name":        map[string]any{"type": "string"},
						"description": map[string]any{"type": "string"},
						"steps": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required": []string{"name", "description"},
				},
			},
		},
		"required": []string{"features"},
	}
}

func (t *createBulkTool) Execute(ctx context.Context, input map[string]any) (string, error) {
	raw, ok := input["features"].([]any)
	if !ok {
		return "", fmt.Errorf("argument 'features' is required and must be a list")
	}

	feats := make([]domain.Feature, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return "", fmt.Errorf("features[%d] must be an object", i)
		}
		f := domain.Feature{}
		f.Category, _ = m["category"].(string)
		f.Name, _ = m["name"].(string)
		f.Description, _ = m["description"].(string)
		if steps, ok := m["steps"].([]any); ok {
			for _, s := range steps {
				if ss, ok := s.(string); ok {
					f.Steps = append(f.Steps, ss)
				}
			}
		}
		if f.Name == "" {
			return "", fmt.Errorf("features[%d]: name is required", i)
		}
		feats = append(feats, f)
	}

	ids, err := t.store.CreateBulk(ctx, feats)
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{"created": len(ids), "ids": ids})
}
