package subscription

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore implements Store with mutex-guarded maps. Intended for tests and
// single-process setups; production deployments use the Postgres store.
type memStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemStore returns an empty in-memory subscription store.
func NewMemStore() Store {
	return &memStore{subs: make(map[uuid.UUID]Subscription)}
}

func (s *memStore) Create(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = cloneSub(*sub)
	return nil
}

func (s *memStore) Update(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	s.subs[sub.ID] = cloneSub(*sub)
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := cloneSub(sub)
	return &cp, nil
}

func (s *memStore) ActiveForTag(ctx context.Context, subjectID uuid.UUID, tag string, now time.Time) (*Subscription, error) {
	return s.newestMatching(subjectID, tag, func(sub *Subscription) bool {
		return sub.IsActiveAt(now) && sub.IsPaid && !sub.IsCancelled()
	})
}

func (s *memStore) LastForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	return s.newestMatching(subjectID, tag, func(*Subscription) bool { return true })
}

func (s *memStore) DueForTag(ctx context.Context, subjectID uuid.UUID, tag string) (*Subscription, error) {
	return s.newestMatching(subjectID, tag, func(sub *Subscription) bool {
		return sub.IsDue()
	})
}

func (s *memStore) ByProformaID(ctx context.Context, proformaID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.ProformaID != nil && *sub.ProformaID == proformaID {
			cp := cloneSub(sub)
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *memStore) ListForTag(ctx context.Context, subjectID uuid.UUID, tag string) ([]*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.SubjectID == subjectID && sub.Tag == tag {
			cp := cloneSub(sub)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartsOn.After(out[j].StartsOn)
	})
	return out, nil
}

func (s *memStore) CountForSubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sub := range s.subs {
		if sub.SubjectID == subjectID {
			n++
		}
	}
	return n, nil
}

// newestMatching returns the StartsOn-newest record for the subject and tag
// that passes the filter.
func (s *memStore) newestMatching(subjectID uuid.UUID, tag string, match func(*Subscription) bool) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Subscription
	for _, sub := range s.subs {
		if sub.SubjectID != subjectID || sub.Tag != tag {
			continue
		}
		cp := cloneSub(sub)
		if !match(&cp) {
			continue
		}
		if best == nil || cp.StartsOn.After(best.StartsOn) {
			best = &cp
		}
	}
	if best == nil {
		return nil, ErrSubscriptionNotFound
	}
	return best, nil
}

func cloneSub(sub Subscription) Subscription {
	cp := sub
	if sub.CancelledOn != nil {
		t := *sub.CancelledOn
		cp.CancelledOn = &t
	}
	if sub.ProformaID != nil {
		id := *sub.ProformaID
		cp.ProformaID = &id
	}
	if sub.InvoiceID != nil {
		id := *sub.InvoiceID
		cp.InvoiceID = &id
	}
	return cp
}

// memUsageStore implements UsageStore in memory.
type memUsageStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]map[string]float64
}

// NewMemUsageStore returns an empty in-memory usage store.
func NewMemUsageStore() UsageStore {
	return &memUsageStore{entries: make(map[uuid.UUID]map[string]float64)}
}

func (s *memUsageStore) Get(ctx context.Context, subscriptionID uuid.UUID, featureCode string) (*Usage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCode, ok := s.entries[subscriptionID]
	if !ok {
		return nil, ErrUsageNotFound
	}
	used, ok := byCode[featureCode]
	if !ok {
		return nil, ErrUsageNotFound
	}
	return &Usage{SubscriptionID: subscriptionID, FeatureCode: featureCode, Used: used}, nil
}

func (s *memUsageStore) Save(ctx context.Context, usage *Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byCode, ok := s.entries[usage.SubscriptionID]
	if !ok {
		byCode = make(map[string]float64)
		s.entries[usage.SubscriptionID] = byCode
	}
	byCode[usage.FeatureCode] = usage.Used
	return nil
}

func (s *memUsageStore) DeleteForSubscription(ctx context.Context, subscriptionID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, subscriptionID)
	return nil
}
