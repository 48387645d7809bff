package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/domain/pricing"
	"github.com/example/agent-commerce/internal/session"
)

type Deps struct {
	Store     Store
	Catalog   Catalog
	Recipes   Recipes
	Locker    *session.Locker
	Cache     Cache
	Publisher EventPublisher
	TaxRate   pricing.TaxRate
	Clock     func() time.Time
	Logger    *zap.Logger
}

type Service struct {
	store     Store
	catalog   Catalog
	recipes   Recipes
	locker    *session.Locker
	cache     Cache
	publisher EventPublisher
	taxRate   pricing.TaxRate
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("cart: store is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart: catalog is required")
	}
	if deps.TaxRate < 0 {
		return nil, fmt.Errorf("cart: tax rate must not be negative, got %d", deps.TaxRate)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	locker := deps.Locker
	if locker == nil {
		locker = session.NewLocker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     deps.Store,
		catalog:   deps.Catalog,
		recipes:   deps.Recipes,
		locker:    locker,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		taxRate:   deps.TaxRate,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger.Named("cart"),
	}, nil
}

func (s *Service) TaxRate() pricing.TaxRate {
	return s.taxRate
}

// AddItem adds quantity (at least 1) of catalogID to the session's cart,
// merging with an existing line of the same variant.
func (s *Service) AddItem(ctx context.Context, sessionID, catalogID string, quantity int, variant, notes *string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	line, err := s.resolveLine(catalogID, quantity, variant, notes)
	if err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	if err := s.store.UpsertLines(ctx, sessionID, []Line{line}, s.now()); err != nil {
		return nil, fmt.Errorf("add item %s: %w", line.CatalogID, err)
	}
	return s.afterMutation(ctx, sessionID, CartUpdated{
		Action:    ActionAdd,
		CatalogID: line.CatalogID,
		Variant:   line.Variant,
		Quantity:  line.Quantity,
	})
}

// AddRecipe adds every component of the recipe matching keyword. Nothing is
// added unless every component validates.
func (s *Service) AddRecipe(ctx context.Context, sessionID, keyword string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if s.recipes == nil {
		return nil, ErrRecipeNotFound
	}
	recipe, ok := s.recipes.Match(keyword)
	if !ok {
		return nil, ErrRecipeNotFound.WithMessage(fmt.Sprintf("no recipe matches %q", keyword)).WithParam("recipe")
	}

	lines := make([]Line, 0, len(recipe.Items))
	for _, component := range recipe.Items {
		line, err := s.resolveLine(component.CatalogID, component.Quantity, component.Variant, component.Notes)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", recipe.Key, err)
		}
		lines = append(lines, line)
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	if err := s.store.UpsertLines(ctx, sessionID, lines, s.now()); err != nil {
		return nil, fmt.Errorf("add recipe %s: %w", recipe.Key, err)
	}
	s.logger.Debug("recipe added", zap.String("session_id", sessionID), zap.String("recipe", recipe.Key), zap.Int("lines", len(lines)))
	return s.afterMutation(ctx, sessionID, CartUpdated{Action: ActionAdd})
}

// SetQuantity sets a line's quantity. Zero removes the line.
func (s *Service) SetQuantity(ctx context.Context, sessionID, catalogID string, quantity int, variant *string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, ErrInvalidQuantity.WithParam("quantity")
	}
	catalogID = strings.TrimSpace(catalogID)
	v := NormalizeVariant(variant)

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	if quantity == 0 {
		if err := s.store.DeleteLine(ctx, sessionID, catalogID, v, s.now()); err != nil {
			return nil, fmt.Errorf("remove item %s: %w", catalogID, err)
		}
		return s.afterMutation(ctx, sessionID, CartUpdated{Action: ActionRemove, CatalogID: catalogID, Variant: v})
	}

	found, err := s.store.SetQuantity(ctx, sessionID, catalogID, v, quantity, s.now())
	if err != nil {
		return nil, fmt.Errorf("set quantity %s: %w", catalogID, err)
	}
	if !found {
		return nil, ErrLineNotFound.WithMessage(fmt.Sprintf("no cart line for %s", lineKey(catalogID, v))).WithParam("catalog_id")
	}
	return s.afterMutation(ctx, sessionID, CartUpdated{Action: ActionUpdate, CatalogID: catalogID, Variant: v, Quantity: quantity})
}

// RemoveItem drops a line. Removing an absent line is not an error.
func (s *Service) RemoveItem(ctx context.Context, sessionID, catalogID string, variant *string) (*Cart, error) {
	return s.SetQuantity(ctx, sessionID, catalogID, 0, variant)
}

func (s *Service) Clear(ctx context.Context, sessionID string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	if err := s.store.Clear(ctx, sessionID, s.now()); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return s.afterMutation(ctx, sessionID, CartUpdated{Action: ActionClear})
}

// Get returns the session's cart, empty if it was never touched. A cache
// miss is refilled under the session lock so a concurrent mutation cannot be
// overwritten by an older read.
func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if err := requireSession(sessionID); err != nil {
		return nil, err
	}
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, sessionID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			s.logger.Warn("cart cache read failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()
	return s.load(ctx, sessionID)
}

// load reads the cart from the store and refreshes the cache. Callers hold
// the session lock.
func (s *Service) load(ctx context.Context, sessionID string) (*Cart, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, c); err != nil {
			s.logger.Warn("cart cache write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	return c, nil
}

func (s *Service) Total(ctx context.Context, sessionID string) (Totals, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Totals{}, err
	}
	return s.Totals(c), nil
}

// Totals prices c with the service's tax rate.
func (s *Service) Totals(c *Cart) Totals {
	subtotal := c.Subtotal()
	tax := s.taxRate.Apply(subtotal)
	currency := s.catalog.Currency()
	if len(c.Lines) > 0 && c.Lines[0].Currency != "" {
		currency = c.Lines[0].Currency
	}
	return Totals{
		ItemCount:  c.ItemCount(),
		Subtotal:   subtotal,
		Tax:        tax,
		GrandTotal: subtotal + tax,
		Currency:   currency,
	}
}

// Invalidate drops any cached copy of the session's cart. Order placement
// calls it after clearing the cart in the store.
func (s *Service) Invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("cart cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *Service) resolveLine(catalogID string, quantity int, variant, notes *string) (Line, error) {
	catalogID = strings.TrimSpace(catalogID)
	item, ok := s.catalog.Get(catalogID)
	if !ok {
		return Line{}, ErrItemNotFound.WithMessage(fmt.Sprintf("catalog item %s not found", catalogID)).WithParam("catalog_id")
	}
	if !item.InStock {
		return Line{}, ErrOutOfStock.WithMessage(fmt.Sprintf("%s is out of stock", item.Name)).WithParam("catalog_id")
	}
	v := NormalizeVariant(variant)
	if v != "" && !item.AllowsVariant(v) {
		msg := fmt.Sprintf("%s is not offered in %s", item.Name, v)
		if item.HasVariants() {
			msg = fmt.Sprintf("%s is offered in %s, not %s", item.Name, strings.Join(item.Sizes, ", "), v)
		}
		return Line{}, ErrInvalidVariant.WithMessage(msg).WithParam("variant")
	}
	if quantity < 1 {
		quantity = 1
	}
	return Line{
		CatalogID: item.ID,
		Name:      item.Name,
		Quantity:  quantity,
		UnitPrice: item.Price,
		Currency:  item.Currency,
		Variant:   v,
		Notes:     notes,
	}, nil
}

func (s *Service) afterMutation(ctx context.Context, sessionID string, event CartUpdated) (*Cart, error) {
	s.Invalidate(ctx, sessionID)

	c, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		totals := s.Totals(c)
		event.Type = EventCartUpdated
		event.SessionID = sessionID
		event.ItemCount = totals.ItemCount
		event.Subtotal = totals.Subtotal
		event.Currency = totals.Currency
		event.OccurredAt = s.now()
		if err := s.publisher.Publish(ctx, sessionID, event); err != nil {
			s.logger.Warn("failed to publish cart event", zap.String("session_id", sessionID), zap.String("action", string(event.Action)), zap.Error(err))
		}
	}
	return c, nil
}

func requireSession(sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrMissingSession.WithParam("session_id")
	}
	return nil
}

func lineKey(catalogID, variant string) string {
	if variant == "" {
		return catalogID
	}
	return catalogID + " (" + variant + ")"
}
