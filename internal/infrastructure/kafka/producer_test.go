package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/order"
)

func TestNewMessage_TaggedEvent(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	event := order.OrderPlaced{Type: order.EventOrderPlaced, OrderID: "ORD-1", SessionID: "s1", Total: 499, Currency: "INR"}

	msg, err := newMessage("s1", event, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("s1"), msg.Key)
	assert.Equal(t, now, msg.Time)
	assert.Equal(t, order.EventOrderPlaced, eventType(msg))

	var decoded order.OrderPlaced
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "ORD-1", decoded.OrderID)
	assert.Equal(t, int64(499), decoded.Total)
}

func TestNewMessage_CartEvent(t *testing.T) {
	msg, err := newMessage("s1", cart.CartUpdated{Type: cart.EventCartUpdated, Action: cart.ActionClear}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, cart.EventCartUpdated, eventType(msg))
}

func TestNewMessage_UntypedPayload(t *testing.T) {
	msg, err := newMessage("k", map[string]int{"n": 1}, time.Now())
	require.NoError(t, err)
	assert.Empty(t, msg.Headers)
	assert.Equal(t, "", eventType(msg))
}

func TestNewMessage_EncodeError(t *testing.T) {
	_, err := newMessage("k", make(chan int), time.Now())
	assert.Error(t, err)
}
