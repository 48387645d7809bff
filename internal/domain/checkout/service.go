package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/domain/pricing"
	"github.com/example/agent-commerce/internal/session"
)

type CartReader interface {
	Get(ctx context.Context, sessionID string) (*cart.Cart, error)
}

type OrderPlacer interface {
	PlaceFromCheckout(ctx context.Context, draft order.CheckoutDraft) (*order.Order, error)
}

type Deps struct {
	Store   Store
	Carts   CartReader
	Orders  OrderPlacer
	TaxRate pricing.TaxRate
	// Currency is used for sessions created from an empty cart.
	Currency string
	Options  func(now time.Time) []FulfillmentOption
	Clock    func() time.Time
	NewID    func() string
	Logger   *zap.Logger
}

type Service struct {
	store    Store
	carts    CartReader
	orders   OrderPlacer
	taxRate  pricing.TaxRate
	currency string
	options  func(now time.Time) []FulfillmentOption
	locker   *session.Locker
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("checkout: store is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("checkout: cart reader is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout: order placer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = NewSessionID
	}
	options := deps.Options
	if options == nil {
		options = DefaultFulfillmentOptions
	}
	currency := deps.Currency
	if currency == "" {
		currency = "INR"
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    deps.Store,
		carts:    deps.Carts,
		orders:   deps.Orders,
		taxRate:  deps.TaxRate,
		currency: currency,
		options:  options,
		locker:   session.NewLocker(),
		now:      func() time.Time { return clock().UTC() },
		newID:    newID,
		logger:   logger.Named("checkout"),
	}, nil
}

func NewSessionID() string {
	return "cs_" + ulid.Make().String()
}

// Create snapshots the session's cart. Later cart changes do not reach the
// checkout session.
func (s *Service) Create(ctx context.Context, sessionID string) (*Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, cart.ErrMissingSession.WithParam("session_id")
	}
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	now := s.now()
	currency := s.currency
	if len(c.Lines) > 0 && c.Lines[0].Currency != "" {
		currency = c.Lines[0].Currency
	}

	cs := &Session{
		ID:                 s.newID(),
		SessionID:          sessionID,
		Status:             StatusNotReadyForPayment,
		Currency:           strings.ToLower(currency),
		LineItems:          s.lineItems(c.Lines),
		FulfillmentOptions: s.options(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if len(cs.LineItems) > 0 {
		cs.Status = StatusReadyForPayment
	}
	s.recomputeTotals(cs)

	if err := s.store.Create(ctx, cs); err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	s.logger.Info("checkout session created",
		zap.String("checkout_session_id", cs.ID),
		zap.String("session_id", sessionID),
		zap.Int("line_items", len(cs.LineItems)),
		zap.Int64("total", cs.Amount(TotalTotal)),
	)
	return cs, nil
}

func (s *Service) lineItems(lines []cart.Line) []LineItem {
	items := make([]LineItem, len(lines))
	weights := make([]int64, len(lines))
	var subtotal int64
	for i, l := range lines {
		base := l.Total()
		items[i] = LineItem{
			ID:         "li_" + strconv.Itoa(i+1),
			Item:       ItemRef{ID: l.CatalogID, Quantity: l.Quantity, Variant: l.Variant},
			Name:       l.Name,
			UnitPrice:  l.UnitPrice,
			BaseAmount: base,
			Subtotal:   base,
		}
		weights[i] = base
		subtotal += base
	}

	taxes := pricing.Allocate(s.taxRate.Apply(subtotal), weights)
	for i := range items {
		items[i].Tax = taxes[i]
		items[i].Total = items[i].Subtotal + items[i].Tax
	}
	return items
}

func (s *Service) recomputeTotals(cs *Session) {
	var base, subtotal, tax int64
	for _, li := range cs.LineItems {
		base += li.BaseAmount
		subtotal += li.Subtotal
		tax += li.Tax
	}

	totals := []Total{
		{Type: TotalItemsBaseAmount, DisplayText: "Item(s) total", Amount: base},
		{Type: TotalSubtotal, DisplayText: "Subtotal", Amount: subtotal},
		{Type: TotalTax, DisplayText: taxLabel(s.taxRate), Amount: tax},
	}
	grand := subtotal + tax
	if opt, ok := cs.SelectedFulfillment(); ok {
		totals = append(totals, Total{Type: TotalFulfillment, DisplayText: "Shipping", Amount: opt.Total})
		grand += opt.Total
	}
	cs.Totals = append(totals, Total{Type: TotalTotal, DisplayText: "Total", Amount: grand})
}

// taxLabel renders e.g. "Tax (10%)" or "Tax (12.5%)".
func taxLabel(rate pricing.TaxRate) string {
	pct := strconv.FormatFloat(float64(rate)/100, 'f', -1, 64)
	return "Tax (" + pct + "%)"
}

func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	cs, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get checkout %s: %w", id, err)
	}
	return cs, nil
}

// Update holds the optional changes accepted by Update.
type Update struct {
	FulfillmentOptionID *string
	FulfillmentAddress  *Address
	Buyer               *Buyer
}

// Update applies every field that is set. Nothing is stored unless all of
// them validate.
func (s *Service) Update(ctx context.Context, id string, u Update) (*Session, error) {
	return s.mutate(ctx, id, func(cs *Session) error {
		if u.FulfillmentOptionID != nil {
			if err := s.selectFulfillment(cs, *u.FulfillmentOptionID); err != nil {
				return err
			}
		}
		if u.FulfillmentAddress != nil {
			if err := setAddress(cs, *u.FulfillmentAddress); err != nil {
				return err
			}
		}
		if u.Buyer != nil {
			if err := setBuyer(cs, *u.Buyer); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Service) SelectFulfillment(ctx context.Context, id, optionID string) (*Session, error) {
	return s.Update(ctx, id, Update{FulfillmentOptionID: &optionID})
}

func (s *Service) SetAddress(ctx context.Context, id string, addr Address) (*Session, error) {
	return s.Update(ctx, id, Update{FulfillmentAddress: &addr})
}

func (s *Service) SetBuyer(ctx context.Context, id string, buyer Buyer) (*Session, error) {
	return s.Update(ctx, id, Update{Buyer: &buyer})
}

func (s *Service) selectFulfillment(cs *Session, optionID string) error {
	if _, ok := cs.option(optionID); !ok {
		return ErrUnknownFulfillmentOption.
			WithMessage(fmt.Sprintf("unknown fulfillment option %q", optionID)).
			WithParam("fulfillment_option_id")
	}
	cs.FulfillmentOptionID = &optionID
	s.recomputeTotals(cs)
	return nil
}

func setAddress(cs *Session, addr Address) error {
	addr.Country = strings.ToUpper(strings.TrimSpace(addr.Country))
	switch {
	case strings.TrimSpace(addr.LineOne) == "":
		return ErrInvalidAddress.WithMessage("address line one is required").WithParam("fulfillment_address.line_one")
	case strings.TrimSpace(addr.City) == "":
		return ErrInvalidAddress.WithMessage("city is required").WithParam("fulfillment_address.city")
	case addr.Country == "":
		return ErrInvalidAddress.WithMessage("country is required").WithParam("fulfillment_address.country")
	case !isAlpha2(addr.Country):
		return ErrInvalidAddress.WithMessage("country must be a two-letter code").WithParam("fulfillment_address.country")
	}
	cs.FulfillmentAddress = &addr
	return nil
}

func isAlpha2(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func setBuyer(cs *Session, buyer Buyer) error {
	buyer.Email = strings.TrimSpace(buyer.Email)
	if buyer.Email != "" && !strings.Contains(buyer.Email, "@") {
		return ErrInvalidBuyer.WithMessage("buyer email must contain @").WithParam("buyer.email")
	}
	cs.Buyer = &buyer
	return nil
}

// BeginPayment moves a ready session to in_progress.
func (s *Service) BeginPayment(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(cs *Session) error {
		if !cs.CanTransitionTo(StatusInProgress) {
			return ErrInvalidTransition.WithMessage(fmt.Sprintf("checkout session %s is %s, not ready for payment", cs.ID, cs.Status))
		}
		cs.Status = StatusInProgress
		return nil
	})
}

// Cancel cancels a session that is neither completed nor canceled.
func (s *Service) Cancel(ctx context.Context, id string) (*Session, error) {
	return s.mutate(ctx, id, func(cs *Session) error {
		cs.Status = StatusCanceled
		return nil
	})
}

// Complete places the order for a ready or in-progress session. The order
// and the cart clear commit together; the session is then marked completed.
func (s *Service) Complete(ctx context.Context, id string, buyer *Buyer) (*Session, error) {
	var placed *order.Order
	cs, err := s.mutate(ctx, id, func(cs *Session) error {
		if len(cs.LineItems) == 0 {
			return ErrNotReady.WithMessage(fmt.Sprintf("checkout session %s has no line items", cs.ID))
		}
		if !cs.CanTransitionTo(StatusCompleted) {
			return ErrInvalidTransition.WithMessage(fmt.Sprintf("checkout session %s cannot complete from %s", cs.ID, cs.Status))
		}
		if buyer != nil {
			if err := setBuyer(cs, *buyer); err != nil {
				return err
			}
		}

		o, err := s.orders.PlaceFromCheckout(ctx, s.draft(cs))
		if err != nil {
			return err
		}
		placed = o
		cs.Order = &OrderRef{
			ID:                o.ID,
			CheckoutSessionID: cs.ID,
			PermalinkURL:      "/orders/" + o.ID,
		}
		cs.Status = StatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("checkout completed",
		zap.String("checkout_session_id", cs.ID),
		zap.String("order_id", placed.ID),
		zap.Int64("total", placed.Total),
	)
	return cs, nil
}

func (s *Service) draft(cs *Session) order.CheckoutDraft {
	currency := strings.ToUpper(cs.Currency)
	lines := make([]order.Line, len(cs.LineItems))
	for i, li := range cs.LineItems {
		lines[i] = order.Line{
			CatalogID: li.Item.ID,
			Name:      li.Name,
			Quantity:  li.Item.Quantity,
			Variant:   li.Item.Variant,
			UnitPrice: li.UnitPrice,
			LineTotal: li.Subtotal,
			Currency:  currency,
		}
	}

	var fulfillment int64
	if opt, ok := cs.SelectedFulfillment(); ok {
		fulfillment = opt.Total
	}

	var opts order.PlaceOptions
	if cs.Buyer != nil {
		if name := cs.Buyer.Name(); name != "" {
			opts.CustomerName = &name
		}
		if contact := cs.Buyer.Contact(); contact != "" {
			opts.ContactInfo = &contact
		}
	}
	if cs.FulfillmentAddress != nil {
		opts.Metadata = map[string]any{
			"fulfillment_address": map[string]any{
				"name":        cs.FulfillmentAddress.Name,
				"line_one":    cs.FulfillmentAddress.LineOne,
				"line_two":    cs.FulfillmentAddress.LineTwo,
				"city":        cs.FulfillmentAddress.City,
				"state":       cs.FulfillmentAddress.State,
				"country":     cs.FulfillmentAddress.Country,
				"postal_code": cs.FulfillmentAddress.PostalCode,
			},
		}
	}

	return order.CheckoutDraft{
		SessionID:         cs.SessionID,
		CheckoutSessionID: cs.ID,
		Lines:             lines,
		Tax:               cs.Amount(TotalTax),
		Fulfillment:       fulfillment,
		Options:           opts,
	}
}

// mutate loads the session under its lock, rejects terminal sessions, applies
// fn and stores the result.
func (s *Service) mutate(ctx context.Context, id string, fn func(cs *Session) error) (*Session, error) {
	unlock := s.locker.Lock(id)
	defer unlock()

	cs, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load checkout %s: %w", id, err)
	}
	if err := cs.terminalError(); err != nil {
		return nil, err
	}
	if err := fn(cs); err != nil {
		return nil, err
	}
	cs.UpdatedAt = s.now()
	if err := s.store.Update(ctx, cs); err != nil {
		return nil, fmt.Errorf("update checkout %s: %w", id, err)
	}
	return cs, nil
}
