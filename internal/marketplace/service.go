package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/campusmarket/campusmarket/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPublisher delivers marketplace events to background workers.
type EventPublisher interface {
	PublishItemSold(ctx context.Context, event ItemSoldEvent) error
}

// Recorder receives business metrics.
type Recorder interface {
	ItemListed()
	PurchaseAttempt(outcome string)
}

// ServiceDeps groups optional collaborators. Nil fields are skipped.
type ServiceDeps struct {
	Audit   AuditPort
	Events  EventPublisher
	Metrics Recorder
	Logger  *slog.Logger
}

// Service implements the item lifecycle: listing, browsing, purchase and removal.
type Service struct {
	repo      Repository
	audit     AuditPort
	events    EventPublisher
	metrics   Recorder
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		audit:     deps.Audit,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    logger,
		validator: validator.New(),
		now:       time.Now,
	}
}

// ListItem validates the form and persists a new unsold item for sellerID.
// Checks run in order: required fields, numeric price, positive price.
func (s *Service) ListItem(ctx context.Context, sellerID int64, input ListingInput) (*Item, error) {
	if sellerID <= 0 {
		return nil, shared.ErrNotAuthenticated
	}
	if err := s.validator.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			return nil, ErrMissingFields
		}
		return nil, err
	}
	price, err := ParsePrice(input.Price)
	if err != nil {
		return nil, err
	}

	item, err := s.repo.Create(ctx, NewItem{
		Title:       input.Title,
		Description: input.Description,
		Price:       price,
		Category:    input.Category,
		SellerID:    sellerID,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ItemListed()
	}
	s.record(ctx, sellerID, shared.AuditItemListed, item.ID, map[string]any{"price": item.Price, "category": item.Category})
	return item, nil
}

// ParsePrice converts the raw form value. Surrounding whitespace is ignored;
// hexadecimal notation, NaN and infinities are rejected.
func ParsePrice(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	digits := strings.TrimLeft(text, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, ErrInvalidPrice
	}
	price, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, ErrInvalidPrice
	}
	if price <= 0 {
		return 0, ErrNonPositivePrice
	}
	return price, nil
}

// Browse returns unsold items in category (CategoryAll for every category)
// whose title or description contains search, newest first.
func (s *Service) Browse(ctx context.Context, category, search string) ([]Item, error) {
	// Stored text is valid UTF-8 without NUL, so such terms match nothing.
	if !storableText(category) || !storableText(search) {
		return nil, nil
	}
	return s.repo.ListUnsold(ctx, BrowseFilter{Category: category, Search: search})
}

func storableText(s string) bool {
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}

// HomeFeed returns the most recent unsold items.
func (s *Service) HomeFeed(ctx context.Context) ([]Item, error) {
	return s.repo.ListUnsold(ctx, BrowseFilter{Category: CategoryAll, Limit: HomeFeedSize})
}

// Dashboard returns every item owned by sellerID, sold or not, newest first.
func (s *Service) Dashboard(ctx context.Context, sellerID int64) ([]Item, error) {
	if sellerID <= 0 {
		return nil, shared.ErrNotAuthenticated
	}
	return s.repo.ListBySeller(ctx, sellerID)
}

// Purchase marks itemID sold to buyerID.
func (s *Service) Purchase(ctx context.Context, buyerID, itemID int64) (*Item, error) {
	if buyerID <= 0 {
		return nil, shared.ErrNotAuthenticated
	}
	item, err := s.repo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.observe(OutcomeNotFound)
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	if item.Sold {
		s.observe(OutcomeAlreadySold)
		return nil, ErrAlreadySold
	}
	if item.OwnedBy(buyerID) {
		s.observe(OutcomeSelfPurchase)
		return nil, ErrSelfPurchase
	}

	soldAt := s.now().UTC()
	changed, err := s.repo.MarkSold(ctx, itemID, buyerID, soldAt)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Another buyer won between the read and the conditional update.
		s.observe(OutcomeAlreadySold)
		return nil, ErrAlreadySold
	}
	item.Sold = true
	item.BuyerID = buyerID
	item.SoldAt = soldAt
	s.observe(OutcomeSuccess)
	s.record(ctx, buyerID, shared.AuditItemPurchased, item.ID, map[string]any{"seller_id": item.SellerID})

	if s.events != nil {
		event := ItemSoldEvent{
			ItemID:   item.ID,
			Title:    item.Title,
			Price:    item.Price,
			SellerID: item.SellerID,
			BuyerID:  buyerID,
			SoldAt:   soldAt,
		}
		if err := s.events.PublishItemSold(ctx, event); err != nil {
			s.logger.Warn("publish item sold", slog.Int64("item_id", item.ID), slog.Any("error", err))
		}
	}
	return item, nil
}

// Delete removes itemID when sellerID owns it. Unknown items and items owned
// by someone else are a no-op reported as false with a nil error.
func (s *Service) Delete(ctx context.Context, sellerID, itemID int64) (bool, error) {
	if sellerID <= 0 {
		return false, shared.ErrNotAuthenticated
	}
	deleted, err := s.repo.Delete(ctx, itemID, sellerID)
	if err != nil {
		return false, fmt.Errorf("marketplace: delete %d: %w", itemID, err)
	}
	if deleted {
		s.record(ctx, sellerID, shared.AuditItemDeleted, itemID, nil)
	}
	return deleted, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.PurchaseAttempt(outcome)
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, itemID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "item",
		EntityID: strconv.FormatInt(itemID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Int64("item_id", itemID), slog.Any("error", err))
	}
}
