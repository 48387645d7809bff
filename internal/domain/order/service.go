package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/session"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type Deps struct {
	Store     Store
	Carts     CartInvalidator
	Locker    *session.Locker
	Publisher EventPublisher
	Clock     func() time.Time
	NewID     func() string
	Logger    *zap.Logger
}

type Service struct {
	store     Store
	carts     CartInvalidator
	locker    *session.Locker
	publisher EventPublisher
	now       func() time.Time
	newID     func() string
	logger    *zap.Logger
}

func NewService(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("order: store is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := deps.NewID
	if newID == nil {
		newID = NewOrderID
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
		carts:     deps.Carts,
		locker:    locker,
		publisher: deps.Publisher,
		now:       func() time.Time { return clock().UTC() },
		newID:     newID,
		logger:    logger.Named("order"),
	}, nil
}

// NewOrderID returns a short, speakable order id such as ORD-3F9A1C2B.
func NewOrderID() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "ORD-" + strings.ToUpper(raw[:8])
}

type PlaceOptions struct {
	CustomerName *string
	ContactInfo  *string
	Metadata     map[string]any
}

// PlaceOrder turns the session's cart into a confirmed order and clears the
// cart. An empty cart yields nil, nil: no order is created.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string, opts PlaceOptions) (*Order, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, cart.ErrMissingSession.WithParam("session_id")
	}

	unlock := s.locker.Lock(sessionID)
	defer unlock()

	o, err := s.store.PlaceFromCart(ctx, sessionID, func(lines []cart.Line) (*Order, error) {
		orderLines := make([]Line, len(lines))
		for i, l := range lines {
			orderLines[i] = Line{
				CatalogID: l.CatalogID,
				Name:      l.Name,
				Quantity:  l.Quantity,
				Variant:   l.Variant,
				UnitPrice: l.UnitPrice,
				LineTotal: l.Total(),
				Currency:  l.Currency,
			}
		}
		return s.newOrder(sessionID, nil, orderLines, 0, 0, opts), nil
	})
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if o == nil {
		s.logger.Info("cart empty, no order placed", zap.String("session_id", sessionID))
		return nil, nil
	}

	s.afterPlace(ctx, o)
	return o, nil
}

// CheckoutDraft is a priced order assembled from a checkout session.
type CheckoutDraft struct {
	SessionID         string
	CheckoutSessionID string
	Lines             []Line
	Tax               int64
	Fulfillment       int64
	Options           PlaceOptions
}

// PlaceFromCheckout persists an order priced by a checkout session and
// clears the originating cart in the same transaction.
func (s *Service) PlaceFromCheckout(ctx context.Context, draft CheckoutDraft) (*Order, error) {
	if strings.TrimSpace(draft.SessionID) == "" {
		return nil, cart.ErrMissingSession.WithParam("session_id")
	}
	if len(draft.Lines) == 0 {
		return nil, ErrEmptyOrder
	}

	unlock := s.locker.Lock(draft.SessionID)
	defer unlock()

	checkoutID := draft.CheckoutSessionID
	o := s.newOrder(draft.SessionID, &checkoutID, draft.Lines, draft.Tax, draft.Fulfillment, draft.Options)
	if err := s.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("place order from checkout %s: %w", checkoutID, err)
	}

	s.afterPlace(ctx, o)
	return o, nil
}

func (s *Service) newOrder(sessionID string, checkoutID *string, lines []Line, tax, fulfillment int64, opts PlaceOptions) *Order {
	now := s.now()

	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotal
	}
	currency := ""
	if len(lines) > 0 {
		currency = lines[0].Currency
	}
	description := PlacedDescription

	return &Order{
		ID:                s.newID(),
		SessionID:         sessionID,
		CheckoutSessionID: checkoutID,
		Lines:             lines,
		Subtotal:          subtotal,
		Tax:               tax,
		Fulfillment:       fulfillment,
		Total:             subtotal + tax + fulfillment,
		Currency:          currency,
		Status:            StatusConfirmed,
		CustomerName:      opts.CustomerName,
		ContactInfo:       opts.ContactInfo,
		Metadata:          opts.Metadata,
		CreatedAt:         now,
		StatusHistory: []StatusEntry{
			{Status: LabelPlaced, Description: &description, CreatedAt: now},
		},
	}
}

func (s *Service) afterPlace(ctx context.Context, o *Order) {
	if s.carts != nil {
		s.carts.Invalidate(ctx, o.SessionID)
	}
	s.logger.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("session_id", o.SessionID),
		zap.Int64("total", o.Total),
		zap.Int("lines", len(o.Lines)),
	)
	s.publish(ctx, o.SessionID, OrderPlaced{
		Type:              EventOrderPlaced,
		OrderID:           o.ID,
		SessionID:         o.SessionID,
		CheckoutSessionID: o.CheckoutSessionID,
		CustomerName:      o.CustomerName,
		ContactInfo:       o.ContactInfo,
		Lines:             o.Lines,
		Total:             o.Total,
		Currency:          o.Currency,
		PlacedAt:          o.CreatedAt,
	})
}

// AppendStatus records a free-form history entry without moving the order's
// status.
func (s *Service) AppendStatus(ctx context.Context, orderID, label string, description *string) (*Order, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrInvalidStatus.WithMessage("status label is required").WithParam("status")
	}
	entry := StatusEntry{Status: label, Description: description, CreatedAt: s.now()}
	if err := s.store.AppendStatus(ctx, orderID, entry); err != nil {
		return nil, fmt.Errorf("append status to %s: %w", orderID, err)
	}
	return s.Summary(ctx, orderID)
}

// Cancel cancels a confirmed order. Any other status is an invalid
// transition.
func (s *Service) Cancel(ctx context.Context, orderID string, reason *string) (*Order, error) {
	if reason == nil {
		r := "Order cancelled"
		reason = &r
	}
	return s.transition(ctx, orderID, StatusCancelled, reason)
}

// Advance moves an order along confirmed, processing, shipped, delivered.
func (s *Service) Advance(ctx context.Context, orderID string, target Status, description *string) (*Order, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return nil, err
	}
	return s.transition(ctx, orderID, target, description)
}

func (s *Service) transition(ctx context.Context, orderID string, target Status, description *string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	if !o.CanTransitionTo(target) {
		return nil, o.transitionError(target)
	}

	now := s.now()
	var cancelledAt *time.Time
	if target == StatusCancelled {
		cancelledAt = &now
	}
	entry := StatusEntry{Status: strings.ToUpper(string(target)), Description: description, CreatedAt: now}
	if err := s.store.UpdateStatus(ctx, orderID, o.Status, target, entry, cancelledAt); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Another writer moved the order first; report against its new state.
			if current, getErr := s.store.Get(ctx, orderID); getErr == nil {
				return nil, current.transitionError(target)
			}
		}
		return nil, fmt.Errorf("update order %s: %w", orderID, err)
	}

	s.logger.Info("order status changed",
		zap.String("order_id", orderID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(target)),
	)
	s.publish(ctx, o.SessionID, OrderStatusChanged{
		Type:        EventOrderStatusChanged,
		OrderID:     orderID,
		SessionID:   o.SessionID,
		From:        o.Status,
		To:          target,
		Description: description,
		ChangedAt:   now,
	})
	return s.Summary(ctx, orderID)
}

func (s *Service) Summary(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return o, nil
}

// LatestForSession returns the session's newest order, or nil when it has
// none.
func (s *Service) LatestForSession(ctx context.Context, sessionID string) (*Order, error) {
	o, err := s.store.LatestForSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("latest order for %s: %w", sessionID, err)
	}
	return o, nil
}

// List returns orders most recent first. The limit defaults to 20 and is
// capped at 100.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Order, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	orders, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

func (s *Service) publish(ctx context.Context, key string, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.Warn("failed to publish order event", zap.String("session_id", key), zap.Error(err))
	}
}
