package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
	"github.com/example/agent-commerce/internal/domain/order"
)

// Orders adapts the SQL store to order.Store.
func (s *SQLStore) Orders() order.Store {
	return sqlOrderStore{s}
}

type sqlOrderStore struct {
	s *SQLStore
}

const orderColumns = `id, session_id, checkout_session_id, status, subtotal, tax, fulfillment, total,
	currency, customer_name, contact_info, metadata, created_at, cancelled_at`

func (o sqlOrderStore) PlaceFromCart(ctx context.Context, sessionID string, build func(lines []cart.Line) (*order.Order, error)) (*order.Order, error) {
	var placed *order.Order
	err := o.s.withTx(ctx, "place order", func(tx *sql.Tx) error {
		lines, err := readCartLines(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return nil
		}
		built, err := build(lines)
		if err != nil {
			return err
		}
		if err := insertOrder(ctx, tx, built); err != nil {
			return err
		}
		if err := clearCart(ctx, tx, sessionID, built.CreatedAt); err != nil {
			return err
		}
		placed = built
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

func (o sqlOrderStore) Create(ctx context.Context, ord *order.Order) error {
	return o.s.withTx(ctx, "create order", func(tx *sql.Tx) error {
		if err := insertOrder(ctx, tx, ord); err != nil {
			return err
		}
		return clearCart(ctx, tx, ord.SessionID, ord.CreatedAt)
	})
}

func insertOrder(ctx context.Context, q querier, o *order.Order) error {
	metadata, err := encodeMetadata(o.Metadata)
	if err != nil {
		return apperr.Storage("encode order metadata", err)
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.SessionID, nullableString(o.CheckoutSessionID), string(o.Status),
		o.Subtotal, o.Tax, o.Fulfillment, o.Total, o.Currency,
		nullableString(o.CustomerName), nullableString(o.ContactInfo), metadata,
		formatTime(o.CreatedAt), nullableTime(o.CancelledAt),
	)
	if err != nil {
		return apperr.Storage("insert order", err)
	}

	for i, l := range o.Lines {
		_, err := q.ExecContext(ctx,
			`INSERT INTO order_items (order_id, position, catalog_id, name, quantity, variant, unit_price, line_total, currency)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			o.ID, i+1, l.CatalogID, l.Name, l.Quantity, l.Variant, l.UnitPrice, l.LineTotal, l.Currency,
		)
		if err != nil {
			return apperr.Storage(fmt.Sprintf("insert order line %d", i+1), err)
		}
	}

	for i, e := range o.StatusHistory {
		if err := insertStatusEvent(ctx, q, o.ID, i+1, e); err != nil {
			return err
		}
	}
	return nil
}

func insertStatusEvent(ctx context.Context, q querier, orderID string, position int, e order.StatusEntry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO order_status_events (order_id, position, status, description, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		orderID, position, e.Status, nullableString(e.Description), formatTime(e.CreatedAt),
	)
	if err != nil {
		return apperr.Storage("insert order status", err)
	}
	return nil
}

func nextStatusPosition(ctx context.Context, q querier, orderID string) (int, error) {
	var pos int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM order_status_events WHERE order_id = $1`, orderID,
	).Scan(&pos)
	if err != nil {
		return 0, apperr.Storage("next status position", err)
	}
	return pos, nil
}

func orderExists(ctx context.Context, q querier, id string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE id = $1`, id).Scan(&n); err != nil {
		return false, apperr.Storage("lookup order", err)
	}
	return n > 0, nil
}

func (o sqlOrderStore) AppendStatus(ctx context.Context, id string, entry order.StatusEntry) error {
	return o.s.withTx(ctx, "append order status", func(tx *sql.Tx) error {
		ok, err := orderExists(ctx, tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return order.ErrOrderNotFound.WithParam("order_id")
		}
		pos, err := nextStatusPosition(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertStatusEvent(ctx, tx, id, pos, entry)
	})
}

func (o sqlOrderStore) UpdateStatus(ctx context.Context, id string, from, to order.Status, entry order.StatusEntry, cancelledAt *time.Time) error {
	return o.s.withTx(ctx, "update order status", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $1, cancelled_at = COALESCE($2, cancelled_at) WHERE id = $3 AND status = $4`,
			string(to), nullableTime(cancelledAt), id, string(from),
		)
		if err != nil {
			return apperr.Storage("update order status", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Storage("update order status", err)
		}
		if n == 0 {
			ok, err := orderExists(ctx, tx, id)
			if err != nil {
				return err
			}
			if !ok {
				return order.ErrOrderNotFound.WithParam("order_id")
			}
			return order.ErrInvalidTransition
		}
		pos, err := nextStatusPosition(ctx, tx, id)
		if err != nil {
			return err
		}
		return insertStatusEvent(ctx, tx, id, pos, entry)
	})
}

func (o sqlOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := o.s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	ord, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound.WithParam("order_id")
	}
	if err != nil {
		return nil, err
	}
	if err := o.loadDetails(ctx, ord); err != nil {
		return nil, err
	}
	return ord, nil
}

func (o sqlOrderStore) LatestForSession(ctx context.Context, sessionID string) (*order.Order, error) {
	orders, err := o.List(ctx, order.ListFilter{SessionID: sessionID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return orders[0], nil
}

func (o sqlOrderStore) List(ctx context.Context, f order.ListFilter) ([]*order.Order, error) {
	var w whereBuilder
	if f.SessionID != "" {
		w.add("session_id = %s", f.SessionID)
	}
	if f.Status != "" {
		w.add("status = %s", string(f.Status))
	}
	if f.From != nil {
		w.add("created_at >= %s", formatTime(*f.From))
	}
	if f.To != nil {
		w.add("created_at <= %s", formatTime(*f.To))
	}

	query := `SELECT ` + orderColumns + ` FROM orders` + w.sql() + ` ORDER BY created_at DESC, id DESC`
	args := w.args
	if f.Limit > 0 {
		query += " LIMIT " + w.next()
		args = append(args, f.Limit)
	}

	rows, err := o.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage("list orders", err)
	}
	orders := []*order.Order{}
	for rows.Next() {
		ord, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, ord)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, apperr.Storage("list orders", err)
	}
	rows.Close()

	// Details are loaded after the listing is closed; SQLite runs on one
	// connection.
	for _, ord := range orders {
		if err := o.loadDetails(ctx, ord); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (*order.Order, error) {
	var (
		o            order.Order
		status       string
		checkoutID   sql.NullString
		customerName sql.NullString
		contactInfo  sql.NullString
		metadata     sql.NullString
		createdAt    string
		cancelledAt  sql.NullString
	)
	err := r.Scan(&o.ID, &o.SessionID, &checkoutID, &status, &o.Subtotal, &o.Tax, &o.Fulfillment, &o.Total,
		&o.Currency, &customerName, &contactInfo, &metadata, &createdAt, &cancelledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperr.Storage("scan order", err)
	}

	o.Status = order.Status(status)
	o.CheckoutSessionID = stringPtr(checkoutID)
	o.CustomerName = stringPtr(customerName)
	o.ContactInfo = stringPtr(contactInfo)
	if o.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, apperr.Storage("decode order metadata", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, apperr.Storage("scan order", err)
	}
	if o.CancelledAt, err = timePtr(cancelledAt); err != nil {
		return nil, apperr.Storage("scan order", err)
	}
	return &o, nil
}

func (o sqlOrderStore) loadDetails(ctx context.Context, ord *order.Order) error {
	lines, err := o.readLines(ctx, ord.ID)
	if err != nil {
		return err
	}
	history, err := o.readHistory(ctx, ord.ID)
	if err != nil {
		return err
	}
	ord.Lines = lines
	ord.StatusHistory = history
	return nil
}

func (o sqlOrderStore) readLines(ctx context.Context, orderID string) ([]order.Line, error) {
	rows, err := o.s.db.QueryContext(ctx,
		`SELECT catalog_id, name, quantity, variant, unit_price, line_total, currency
		 FROM order_items WHERE order_id = $1 ORDER BY position`, orderID,
	)
	if err != nil {
		return nil, apperr.Storage("read order lines", err)
	}
	defer rows.Close()

	lines := []order.Line{}
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.CatalogID, &l.Name, &l.Quantity, &l.Variant, &l.UnitPrice, &l.LineTotal, &l.Currency); err != nil {
			return nil, apperr.Storage("scan order line", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("read order lines", err)
	}
	return lines, nil
}

func (o sqlOrderStore) readHistory(ctx context.Context, orderID string) ([]order.StatusEntry, error) {
	rows, err := o.s.db.QueryContext(ctx,
		`SELECT status, description, created_at
		 FROM order_status_events WHERE order_id = $1 ORDER BY position`, orderID,
	)
	if err != nil {
		return nil, apperr.Storage("read order history", err)
	}
	defer rows.Close()

	history := []order.StatusEntry{}
	for rows.Next() {
		var (
			e           order.StatusEntry
			description sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&e.Status, &description, &createdAt); err != nil {
			return nil, apperr.Storage("scan order status", err)
		}
		e.Description = stringPtr(description)
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, apperr.Storage("scan order status", err)
		}
		e.CreatedAt = t
		history = append(history, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("read order history", err)
	}
	return history, nil
}

// encodeMetadata stores nil as NULL and an empty map as {}.
func encodeMetadata(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func decodeMetadata(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid {
		return nil, nil
	}
	m := map[string]any{}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
