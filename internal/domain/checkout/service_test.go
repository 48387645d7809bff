package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/order"
	"github.com/example/agent-commerce/internal/domain/pricing"
)

var fixedNow = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

type stubCarts map[string]*cart.Cart

func (s stubCarts) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	if c, ok := s[sessionID]; ok {
		return c, nil
	}
	return &cart.Cart{SessionID: sessionID}, nil
}

type recordingOrders struct {
	mu     sync.Mutex
	drafts []order.CheckoutDraft
	err    error
}

func (r *recordingOrders) PlaceFromCheckout(ctx context.Context, draft order.CheckoutDraft) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.drafts = append(r.drafts, draft)
	var subtotal int64
	for _, l := range draft.Lines {
		subtotal += l.LineTotal
	}
	return &order.Order{
		ID:                fmt.Sprintf("ORD-%08d", len(r.drafts)),
		SessionID:         draft.SessionID,
		CheckoutSessionID: &draft.CheckoutSessionID,
		Lines:             draft.Lines,
		Subtotal:          subtotal,
		Tax:               draft.Tax,
		Fulfillment:       draft.Fulfillment,
		Total:             subtotal + draft.Tax + draft.Fulfillment,
		Status:            order.StatusConfirmed,
	}, nil
}

func (r *recordingOrders) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.drafts)
}

func newTestService(t *testing.T, carts stubCarts) (*Service, *recordingOrders) {
	t.Helper()
	orders := &recordingOrders{}
	seq := 0
	svc, err := NewService(Deps{
		Store:   NewMemoryStore(),
		Carts:   carts,
		Orders:  orders,
		TaxRate: pricing.DefaultTaxRate,
		Clock:   func() time.Time { return fixedNow },
		NewID: func() string {
			seq++
			return fmt.Sprintf("cs_%d", seq)
		},
	})
	require.NoError(t, err)
	return svc, orders
}

func twoLineCart() stubCarts {
	return stubCarts{"s1": {SessionID: "s1", Lines: []cart.Line{
		{CatalogID: "a", Name: "Item A", Quantity: 2, UnitPrice: 500, Currency: "INR"},
		{CatalogID: "b", Name: "Item B", Quantity: 1, UnitPrice: 300, Currency: "INR"},
	}}}
}

func strPtr(s string) *string { return &s }

// ============================================
// Create
// ============================================

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	assert.Regexp(t, `^cs_[0-9A-Z]{26}$`, id)
}

func TestCreate_SnapshotsCart(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())

	cs, err := svc.Create(context.Background(), "s1")
	require.NoError(t, err)

	assert.Equal(t, StatusReadyForPayment, cs.Status)
	assert.Equal(t, "inr", cs.Currency)
	require.Len(t, cs.LineItems, 2)
	assert.Equal(t, "li_1", cs.LineItems[0].ID)
	assert.Equal(t, int64(1000), cs.LineItems[0].BaseAmount)
	assert.Equal(t, int64(0), cs.LineItems[0].Discount)
	assert.Equal(t, int64(100), cs.LineItems[0].Tax)
	assert.Equal(t, int64(1100), cs.LineItems[0].Total)
	assert.Equal(t, int64(30), cs.LineItems[1].Tax)

	assert.Equal(t, int64(1300), cs.Amount(TotalItemsBaseAmount))
	assert.Equal(t, int64(1300), cs.Amount(TotalSubtotal))
	assert.Equal(t, int64(130), cs.Amount(TotalTax))
	assert.Equal(t, int64(0), cs.Amount(TotalFulfillment))
	assert.Equal(t, int64(1430), cs.Amount(TotalTotal))
	assert.Nil(t, cs.FulfillmentOptionID)
	require.Len(t, cs.FulfillmentOptions, 2)
	assert.Equal(t, fixedNow.Add(5*day), cs.FulfillmentOptions[0].EarliestDeliveryTime)

	types := make([]TotalType, len(cs.Totals))
	for i, tot := range cs.Totals {
		types[i] = tot.Type
	}
	assert.Equal(t, []TotalType{TotalItemsBaseAmount, TotalSubtotal, TotalTax, TotalTotal}, types)
	assert.Equal(t, "Tax (10%)", cs.Totals[2].DisplayText)
}

func TestCreate_LineTaxesSumToSessionTax(t *testing.T) {
	carts := stubCarts{"s1": {SessionID: "s1", Lines: []cart.Line{
		{CatalogID: "a", Quantity: 1, UnitPrice: 333, Currency: "INR"},
		{CatalogID: "b", Quantity: 1, UnitPrice: 333, Currency: "INR"},
		{CatalogID: "c", Quantity: 1, UnitPrice: 334, Currency: "INR"},
	}}}
	svc, _ := newTestService(t, carts)

	cs, err := svc.Create(context.Background(), "s1")
	require.NoError(t, err)

	var sum int64
	for _, li := range cs.LineItems {
		sum += li.Tax
	}
	assert.Equal(t, cs.Amount(TotalTax), sum)
	assert.Equal(t, int64(100), sum)
}

func TestCreate_EmptyCart(t *testing.T) {
	svc, _ := newTestService(t, stubCarts{})

	cs, err := svc.Create(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusNotReadyForPayment, cs.Status)
	assert.Empty(t, cs.LineItems)
	assert.Equal(t, int64(0), cs.Amount(TotalTotal))
	assert.Equal(t, "inr", cs.Currency)
}

func TestCreate_MissingSession(t *testing.T) {
	svc, _ := newTestService(t, stubCarts{})

	_, err := svc.Create(context.Background(), "")
	assert.ErrorIs(t, err, cart.ErrMissingSession)
}

func TestCreate_CartChangesDoNotLeak(t *testing.T) {
	carts := twoLineCart()
	svc, _ := newTestService(t, carts)
	ctx := context.Background()

	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)
	carts["s1"].Lines[0].Quantity = 9

	got, err := svc.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.LineItems[0].Item.Quantity)
	assert.Equal(t, int64(1430), got.Amount(TotalTotal))
}

func TestGet_NotFound(t *testing.T) {
	svc, _ := newTestService(t, stubCarts{})

	_, err := svc.Get(context.Background(), "cs_missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

// ============================================
// Updates
// ============================================

func TestSelectFulfillment(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	cs, err = svc.SelectFulfillment(ctx, cs.ID, "fulfillment_express")
	require.NoError(t, err)
	require.NotNil(t, cs.FulfillmentOptionID)
	assert.Equal(t, "fulfillment_express", *cs.FulfillmentOptionID)
	assert.Equal(t, int64(165), cs.Amount(TotalFulfillment))
	assert.Equal(t, int64(1595), cs.Amount(TotalTotal))
	assert.Equal(t, TotalTotal, cs.Totals[len(cs.Totals)-1].Type)

	cs, err = svc.SelectFulfillment(ctx, cs.ID, "fulfillment_standard")
	require.NoError(t, err)
	assert.Equal(t, int64(1485), cs.Amount(TotalTotal))
	assert.Len(t, cs.Totals, 5)

	_, err = svc.SelectFulfillment(ctx, cs.ID, "fulfillment_drone")
	require.ErrorIs(t, err, ErrUnknownFulfillmentOption)

	got, err := svc.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, "fulfillment_standard", *got.FulfillmentOptionID)

	_, err = svc.SelectFulfillment(ctx, "cs_missing", "fulfillment_standard")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSetAddress(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	valid := Address{Name: "Asha", LineOne: "12 MG Road", City: "Bengaluru", State: "KA", Country: "in", PostalCode: "560001"}

	tests := []struct {
		name  string
		addr  Address
		param string
	}{
		{"missing line one", Address{City: "Bengaluru", Country: "IN"}, "fulfillment_address.line_one"},
		{"missing city", Address{LineOne: "12 MG Road", Country: "IN"}, "fulfillment_address.city"},
		{"missing country", Address{LineOne: "12 MG Road", City: "Bengaluru"}, "fulfillment_address.country"},
		{"three letter country", Address{LineOne: "12 MG Road", City: "Bengaluru", Country: "IND"}, "fulfillment_address.country"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SetAddress(ctx, cs.ID, tt.addr)
			require.ErrorIs(t, err, ErrInvalidAddress)
			var ae *apperr.Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.param, ae.Param)
		})
	}

	updated, err := svc.SetAddress(ctx, cs.ID, valid)
	require.NoError(t, err)
	require.NotNil(t, updated.FulfillmentAddress)
	assert.Equal(t, "IN", updated.FulfillmentAddress.Country)
	assert.Equal(t, cs.Totals, updated.Totals)
}

func TestSetBuyer(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.SetBuyer(ctx, cs.ID, Buyer{Email: "not-an-email"})
	require.ErrorIs(t, err, ErrInvalidBuyer)

	cs, err = svc.SetBuyer(ctx, cs.ID, Buyer{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Asha Rao", cs.Buyer.Name())
}

func TestUpdate_AllOrNothing(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.Update(ctx, cs.ID, Update{
		FulfillmentOptionID: strPtr("fulfillment_express"),
		FulfillmentAddress:  &Address{LineOne: "12 MG Road"},
	})
	require.ErrorIs(t, err, ErrInvalidAddress)

	got, err := svc.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Nil(t, got.FulfillmentOptionID)
	assert.Equal(t, int64(1430), got.Amount(TotalTotal))
}

// ============================================
// Lifecycle
// ============================================

func TestBeginPayment(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	cs, err = svc.BeginPayment(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, cs.Status)

	_, err = svc.BeginPayment(ctx, cs.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestComplete(t *testing.T) {
	svc, orders := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)
	_, err = svc.SelectFulfillment(ctx, cs.ID, "fulfillment_standard")
	require.NoError(t, err)
	_, err = svc.SetAddress(ctx, cs.ID, Address{LineOne: "12 MG Road", City: "Bengaluru", Country: "IN"})
	require.NoError(t, err)

	done, err := svc.Complete(ctx, cs.ID, &Buyer{FirstName: "Asha", PhoneNumber: "+91 98450 00000"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Order)
	assert.Equal(t, "ORD-00000001", done.Order.ID)
	assert.Equal(t, cs.ID, done.Order.CheckoutSessionID)
	assert.Equal(t, "/orders/ORD-00000001", done.Order.PermalinkURL)

	require.Equal(t, 1, orders.count())
	draft := orders.drafts[0]
	assert.Equal(t, "s1", draft.SessionID)
	assert.Equal(t, int64(130), draft.Tax)
	assert.Equal(t, int64(55), draft.Fulfillment)
	require.Len(t, draft.Lines, 2)
	assert.Equal(t, "INR", draft.Lines[0].Currency)
	assert.Equal(t, int64(1000), draft.Lines[0].LineTotal)
	assert.Equal(t, "Asha", *draft.Options.CustomerName)
	assert.Equal(t, "+91 98450 00000", *draft.Options.ContactInfo)
	assert.Contains(t, draft.Options.Metadata, "fulfillment_address")

	_, err = svc.Complete(ctx, cs.ID, nil)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 1, orders.count())

	_, err = svc.SelectFulfillment(ctx, cs.ID, "fulfillment_express")
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestComplete_ConcurrentPlacesOneOrder(t *testing.T) {
	svc, orders := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Complete(ctx, cs.ID, nil)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyCompleted)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, orders.count())
}

func TestComplete_EmptySession(t *testing.T) {
	svc, orders := newTestService(t, stubCarts{})
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	_, err = svc.Complete(ctx, cs.ID, nil)
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, 0, orders.count())
}

func TestComplete_OrderFailureLeavesSessionOpen(t *testing.T) {
	svc, orders := newTestService(t, twoLineCart())
	ctx := context.Background()
	cs, err := svc.Create(ctx, "s1")
	require.NoError(t, err)

	orders.err = apperr.Storage("insert order", assert.AnError)
	_, err = svc.Complete(ctx, cs.ID, nil)
	require.Error(t, err)

	got, err := svc.Get(ctx, cs.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReadyForPayment, got.Status)
	assert.Nil(t, got.Order)
}

func TestCancel(t *testing.T) {
	svc, _ := newTestService(t, twoLineCart())
	ctx := context.Background()

	open, err := svc.Create(ctx, "s1")
	require.NoError(t, err)
	canceled, err := svc.Cancel(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	_, err = svc.Cancel(ctx, open.ID)
	assert.ErrorIs(t, err, ErrSessionCanceled)
	_, err = svc.Complete(ctx, open.ID, nil)
	assert.ErrorIs(t, err, ErrSessionCanceled)

	completed, err := svc.Create(ctx, "s1")
	require.NoError(t, err)
	_, err = svc.Complete(ctx, completed.ID, nil)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, completed.ID)
	assert.ErrorIs(t, err, ErrAlreadyCompleted)

	_, err = svc.Cancel(ctx, "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTaxLabel(t *testing.T) {
	assert.Equal(t, "Tax (10%)", taxLabel(1000))
	assert.Equal(t, "Tax (12.5%)", taxLabel(1250))
	assert.Equal(t, "Tax (0%)", taxLabel(0))
}
