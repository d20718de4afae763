package marketplace

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/campusmarket/campusmarket/internal/shared"
	"github.com/campusmarket/campusmarket/internal/view"
)

// Handler serves the catalogue and seller pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers marketplace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.home)
	r.Get("/marketplace", h.browse)

	r.With(requireUser("Please login to access your dashboard.")).Get("/dashboard", h.dashboard)
	r.Group(func(r chi.Router) {
		r.Use(requireUser("Please login to add items."))
		r.Get("/add_item", h.showAddItem)
		r.Post("/add_item", h.addItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireUser("Please login to purchase items."))
		r.Get("/buy_item/{id}", h.buyItem)
		r.Post("/buy_item/{id}", h.buyItem)
	})
	r.Group(func(r chi.Router) {
		r.Use(requireUser(""))
		r.Get("/delete_item/{id}", h.deleteItem)
		r.Post("/delete_item/{id}", h.deleteItem)
	})
}

// requireUser redirects anonymous visitors to the login page, flashing
// message when it is not empty.
func requireUser(message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := shared.CurrentUserID(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			if sess := shared.SessionFromContext(r.Context()); sess != nil && message != "" {
				sess.AddFlash(shared.FlashMessage{Kind: "error", Message: message})
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		})
	}
}

// ItemCard pairs an item with whether the signed-in viewer may buy it.
type ItemCard struct {
	Item   Item
	CanBuy bool
}

type listPage struct {
	Items      []ItemCard
	Categories []string
	Category   string
	Search     string
}

func (h *Handler) cards(r *http.Request, items []Item) []ItemCard {
	userID, loggedIn := shared.CurrentUserID(r.Context())
	cards := make([]ItemCard, 0, len(items))
	for _, item := range items {
		cards = append(cards, ItemCard{Item: item, CanBuy: loggedIn && !item.Sold && !item.OwnedBy(userID)})
	}
	return cards
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.HomeFeed(r.Context())
	if err != nil {
		h.logger.Error("home feed failed", slog.Any("error", err))
		http.Error(w, "Failed to load items", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/index.html", "Home", listPage{Items: h.cards(r, items)}, http.StatusOK)
}

func (h *Handler) browse(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := CategoryAll
	if query.Has("category") {
		category = query.Get("category")
	}
	search := query.Get("search")

	items, err := h.service.Browse(r.Context(), category, search)
	if err != nil {
		h.logger.Error("browse items failed", slog.Any("error", err))
		http.Error(w, "Failed to load items", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/marketplace.html", "Marketplace", listPage{
		Items:      h.cards(r, items),
		Categories: Categories,
		Category:   category,
		Search:     search,
	}, http.StatusOK)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.CurrentUserID(r.Context())
	items, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.logger.Error("dashboard failed", slog.Any("error", err), slog.Int64("user_id", userID))
		http.Error(w, "Failed to load items", http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/dashboard.html", "Dashboard", map[string]any{"Items": items}, http.StatusOK)
}

func (h *Handler) showAddItem(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/add_item.html", "Sell an Item", map[string]any{"Categories": Categories}, http.StatusOK)
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	userID, _ := shared.CurrentUserID(r.Context())
	input := ListingInput{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Price:       r.PostFormValue("price"),
		Category:    r.PostFormValue("category"),
	}
	item, err := h.service.ListItem(r.Context(), userID, input)
	if err != nil {
		h.logUnexpected("list item failed", err)
		h.redirectWithFlash(w, r, "/add_item", "error", shared.UserSafeMessage(err))
		return
	}
	h.logger.Info("item listed", slog.Int64("item_id", item.ID), slog.Int64("seller_id", userID))
	h.redirectWithFlash(w, r, "/dashboard", "success", "Item listed successfully!")
}

func (h *Handler) buyItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.redirectWithFlash(w, r, "/marketplace", "error", ErrItemNotFound.UserMessage())
		return
	}
	userID, _ := shared.CurrentUserID(r.Context())
	if _, err := h.service.Purchase(r.Context(), userID, id); err != nil {
		h.logUnexpected("purchase failed", err)
		h.redirectWithFlash(w, r, "/marketplace", "error", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/marketplace", "success", "Item purchased successfully! Thank you for your purchase.")
}

func (h *Handler) deleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	userID, _ := shared.CurrentUserID(r.Context())
	deleted, err := h.service.Delete(r.Context(), userID, id)
	if err != nil {
		h.logger.Error("delete item failed", slog.Any("error", err), slog.Int64("item_id", id))
		h.redirectWithFlash(w, r, "/dashboard", "error", shared.GenericFailureMessage)
		return
	}
	if deleted {
		h.redirectWithFlash(w, r, "/dashboard", "success", "Item deleted successfully!")
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *Handler) logUnexpected(msg string, err error) {
	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		h.logger.Error(msg, slog.Any("error", err))
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	var username string
	if sess != nil {
		flash = sess.PopFlash()
		username = sess.Username()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Username:    username,
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, template, viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err), slog.String("template", template))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
