package plans

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Catalog is the read-only plan lookup contract consumed by the lifecycle
// engine. Implementations must be safe for concurrent use.
type Catalog interface {
	// FindByCodeAndTag returns the plan addressed by the (code, tag) pair.
	// Returns ErrPlanNotFound when no such plan exists.
	FindByCodeAndTag(ctx context.Context, code, tag string) (*Plan, error)

	// FindByID returns the plan a subscription record is bound to.
	// Returns ErrPlanNotFound when no such plan exists.
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// First returns the catalog's default plan, used as the fallback when a
	// subject with no subscription history asks for an extension.
	// Returns ErrEmptyCatalog when the catalog holds no plans.
	First(ctx context.Context) (*Plan, error)
}

// inMemCatalog holds validated plans in insertion order.
type inMemCatalog struct {
	mu    sync.RWMutex
	order []uuid.UUID
	byID  map[uuid.UUID]Plan
}

// NewInMemCatalog builds a Catalog from the given definitions. Plans without
// an ID get a deterministic one derived from their (code, tag) identity.
// Definitions are validated and copied; later mutations of the input slice do
// not affect the catalog.
func NewInMemCatalog(defs []Plan) (Catalog, error) {
	c := &inMemCatalog{
		order: make([]uuid.UUID, 0, len(defs)),
		byID:  make(map[uuid.UUID]Plan, len(defs)),
	}

	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}

		key := def.Code + "/" + def.Tag
		if _, dup := seen[key]; dup {
			return nil, ErrDuplicatePlan
		}
		seen[key] = struct{}{}

		if def.ID == uuid.Nil {
			def.ID = DeterministicID(def.Code, def.Tag)
		}
		def.Features = append([]Feature(nil), def.Features...)

		c.order = append(c.order, def.ID)
		c.byID[def.ID] = def
	}

	return c, nil
}

func (c *inMemCatalog) FindByCodeAndTag(ctx context.Context, code, tag string) (*Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.order {
		p := c.byID[id]
		if p.Code == code && p.Tag == tag {
			return clonePlan(p), nil
		}
	}
	return nil, ErrPlanNotFound
}

func (c *inMemCatalog) FindByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.byID[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	return clonePlan(p), nil
}

func (c *inMemCatalog) First(ctx context.Context) (*Plan, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.order) == 0 {
		return nil, ErrEmptyCatalog
	}
	p := c.byID[c.order[0]]
	return clonePlan(p), nil
}

// clonePlan returns a defensive copy so callers cannot mutate catalog state.
func clonePlan(p Plan) *Plan {
	cp := p
	cp.Features = append([]Feature(nil), p.Features...)
	return &cp
}
