package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/email"
)

// Sender delivers order confirmations.
type Sender interface {
	SendOrderConfirmation(to string, c email.Confirmation) error
}

// Handler processes events for sending notifications
type Handler struct {
	sender Sender
	logger *zap.Logger
}

func NewHandler(sender Sender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sender: sender, logger: logger.Named("notifier")}
}

type envelope struct {
	Type string `json:"type"`
}

// HandleEvent processes an event from Kafka. Events other than order.placed
// are ignored.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if env.Type != order.EventOrderPlaced {
		return nil
	}

	var e order.OrderPlaced
	if err := json.Unmarshal(value, &e); err != nil {
		return fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return h.handleOrderPlaced(e)
}

func (h *Handler) handleOrderPlaced(e order.OrderPlaced) error {
	to := emailAddress(e.ContactInfo)
	if to == "" {
		h.logger.Debug("no email contact, skipping confirmation",
			zap.String("order_id", e.OrderID),
			zap.String("session_id", e.SessionID),
		)
		return nil
	}

	c := email.Confirmation{
		OrderID:  e.OrderID,
		Total:    e.Total,
		Currency: e.Currency,
		Items:    make([]email.OrderItem, len(e.Lines)),
	}
	if e.CustomerName != nil {
		c.CustomerName = *e.CustomerName
	}
	for i, l := range e.Lines {
		c.Items[i] = email.OrderItem{
			CatalogID: l.CatalogID,
			Name:      l.Name,
			Variant:   l.Variant,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		}
	}

	if err := h.sender.SendOrderConfirmation(to, c); err != nil {
		return err
	}
	h.logger.Info("order confirmation queued", zap.String("order_id", e.OrderID))
	return nil
}

// emailAddress returns contact when it looks like an email address.
func emailAddress(contact *string) string {
	if contact == nil {
		return ""
	}
	c := strings.TrimSpace(*contact)
	if at := strings.Index(c, "@"); at <= 0 || at == len(c)-1 {
		return ""
	}
	return c
}
