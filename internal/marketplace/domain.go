package marketplace

import (
	"time"

	"github.com/campusmarket/campusmarket/internal/shared"
)

// CategoryAll disables category filtering when browsing.
const CategoryAll = "all"

// HomeFeedSize caps the number of items on the landing page.
const HomeFeedSize = 8

// Categories is the closed set offered by the listing form and the browse filter.
var Categories = []string{"books", "electronics", "furniture", "clothing", "other"}

// Item is a listing owned by its seller.
type Item struct {
	ID          int64
	Title       string
	Description string
	Price       float64
	// Category is stored as submitted; it is only constrained when filtering.
	Category  string
	Sold      bool
	SellerID  int64
	BuyerID   int64
	SoldAt    time.Time
	CreatedAt time.Time
}

// OwnedBy reports whether userID is the seller.
func (i Item) OwnedBy(userID int64) bool {
	return i.SellerID == userID
}

// ListingInput is the raw add-item form.
type ListingInput struct {
	Title       string `validate:"required"`
	Description string `validate:"required"`
	Price       string `validate:"required"`
	Category    string
}

// NewItem carries validated fields for persistence.
type NewItem struct {
	Title       string
	Description string
	Price       float64
	Category    string
	SellerID    int64
	CreatedAt   time.Time
}

// BrowseFilter narrows the unsold catalogue.
type BrowseFilter struct {
	// Category is matched exactly unless it is CategoryAll. The empty string
	// matches items listed without a category.
	Category string
	// Search is a case-sensitive substring of title or description.
	Search string
	// Limit of zero returns every match.
	Limit int
}

// ItemSoldEvent is published after a successful purchase.
type ItemSoldEvent struct {
	ItemID   int64     `json:"item_id"`
	Title    string    `json:"title"`
	Price    float64   `json:"price"`
	SellerID int64     `json:"seller_id"`
	BuyerID  int64     `json:"buyer_id"`
	SoldAt   time.Time `json:"sold_at"`
}

// Purchase outcomes reported to metrics.
const (
	OutcomeSuccess      = "success"
	OutcomeNotFound     = "not_found"
	OutcomeAlreadySold  = "already_sold"
	OutcomeSelfPurchase = "self_purchase"
)

var (
	// ErrMissingFields is returned when title, description or price is empty.
	ErrMissingFields = shared.NewDomainError("missing fields", "Please fill in all required fields.")
	// ErrInvalidPrice is returned when the price is not a finite number.
	ErrInvalidPrice = shared.NewDomainError("invalid price", "Please enter a valid price.")
	// ErrNonPositivePrice is returned when the price is zero or negative.
	ErrNonPositivePrice = shared.NewDomainError("non-positive price", "Price must be greater than 0.")
	// ErrItemNotFound is returned when purchasing an unknown item.
	ErrItemNotFound = shared.NewDomainError("item not found", "Item not found!")
	// ErrAlreadySold is returned when purchasing a sold item.
	ErrAlreadySold = shared.NewDomainError("already sold", "This item has already been sold!")
	// ErrSelfPurchase is returned when a seller tries to buy their own item.
	ErrSelfPurchase = shared.NewDomainError("self purchase", "You cannot buy your own item!")
)
