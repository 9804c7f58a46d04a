package plan

import "context"

// Store persists the plan catalog.
type Store interface {
	// Create inserts a new plan. Returns ErrSlugTaken if the slug exists.
	Create(ctx context.Context, p *Plan) error

	// GetByID returns a plan by ID. Returns ErrPlanNotFound if missing.
	GetByID(ctx context.Context, id string) (*Plan, error)

	// GetBySlug returns a plan by slug. Returns ErrPlanNotFound if missing.
	GetBySlug(ctx context.Context, slug string) (*Plan, error)

	// ListActive returns active plans ordered by monthly quota ascending.
	ListActive(ctx context.Context) ([]*Plan, error)

	// SetActive flips a plan's active flag. Returns ErrPlanNotFound if
	// missing.
	SetActive(ctx context.Context, id string, active bool) error
}

// Seed inserts any of the default plans missing from the store. Existing
// slugs are left untouched, so operator edits survive restarts.
func Seed(ctx context.Context, store Store) error {
	for _, d := range Defaults {
		if _, err := store.GetBySlug(ctx, d.Slug); err == nil {
			continue
		} else if err != ErrPlanNotFound {
			return err
		}
		p := d
		if err := store.Create(ctx, &p); err != nil && err != ErrSlugTaken {
			return err
		}
	}
	return nil
}
