package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/campusmarket/campusmarket/internal/marketplace"
	"github.com/campusmarket/campusmarket/internal/shared"
)

// Items implements marketplace.Repository.
type Items struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]marketplace.Item
}

var _ marketplace.Repository = (*Items)(nil)

// NewItems returns an empty item store.
func NewItems() *Items {
	return &Items{byID: make(map[int64]marketplace.Item)}
}

// FindByID returns shared.ErrNotFound for unknown ids.
func (s *Items) FindByID(_ context.Context, id int64) (*marketplace.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &item, nil
}

// Create stores an unsold item under the next id.
func (s *Items) Create(_ context.Context, in marketplace.NewItem) (*marketplace.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item := marketplace.Item{
		ID:          s.nextID,
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		SellerID:    in.SellerID,
		CreatedAt:   in.CreatedAt,
	}
	s.byID[item.ID] = item
	return &item, nil
}

// MarkSold flips an unsold item not owned by buyerID, reporting whether it did.
func (s *Items) MarkSold(_ context.Context, id, buyerID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok || item.Sold || item.SellerID == buyerID {
		return false, nil
	}
	item.Sold = true
	item.BuyerID = buyerID
	item.SoldAt = at
	s.byID[id] = item
	return true, nil
}

// Delete removes the item only when sellerID owns it.
func (s *Items) Delete(_ context.Context, id, sellerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok || item.SellerID != sellerID {
		return false, nil
	}
	delete(s.byID, id)
	return true, nil
}

// ListUnsold applies the filter newest first.
func (s *Items) ListUnsold(_ context.Context, filter marketplace.BrowseFilter) ([]marketplace.Item, error) {
	out := s.collect(func(item marketplace.Item) bool {
		if item.Sold {
			return false
		}
		if filter.Category != marketplace.CategoryAll && item.Category != filter.Category {
			return false
		}
		if filter.Search != "" && !strings.Contains(item.Title, filter.Search) && !strings.Contains(item.Description, filter.Search) {
			return false
		}
		return true
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListBySeller includes sold items.
func (s *Items) ListBySeller(_ context.Context, sellerID int64) ([]marketplace.Item, error) {
	return s.collect(func(item marketplace.Item) bool { return item.SellerID == sellerID }), nil
}

// collect returns matches newest first, ties broken by descending id.
func (s *Items) collect(keep func(marketplace.Item) bool) []marketplace.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]marketplace.Item, 0, len(s.byID))
	for _, item := range s.byID {
		if keep(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
