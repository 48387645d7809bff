package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/agent-commerce/internal/apperr"
	"github.com/example/agent-commerce/internal/domain/cart"
)

// Carts adapts the SQL store to cart.Store.
func (s *SQLStore) Carts() cart.Store {
	return sqlCartStore{s}
}

type sqlCartStore struct {
	s *SQLStore
}

func touchCart(ctx context.Context, q querier, sessionID string, now time.Time) error {
	ts := formatTime(now)
	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (session_id, created_at, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET updated_at = excluded.updated_at`,
		sessionID, ts, ts,
	)
	if err != nil {
		return apperr.Storage("touch cart", err)
	}
	return nil
}

func (c sqlCartStore) UpsertLines(ctx context.Context, sessionID string, lines []cart.Line, now time.Time) error {
	return c.s.withTx(ctx, "upsert cart lines", func(tx *sql.Tx) error {
		if err := touchCart(ctx, tx, sessionID, now); err != nil {
			return err
		}
		for _, l := range lines {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO cart_items (session_id, position, catalog_id, variant, name, quantity, unit_price, currency, notes)
				 VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM cart_items WHERE session_id = $2), $3, $4, $5, $6, $7, $8, $9)
				 ON CONFLICT (session_id, catalog_id, variant) DO UPDATE SET
				     quantity = cart_items.quantity + excluded.quantity,
				     notes = COALESCE(excluded.notes, cart_items.notes)`,
				sessionID, sessionID, l.CatalogID, l.Variant, l.Name, l.Quantity, l.UnitPrice, l.Currency, nullableString(l.Notes),
			)
			if err != nil {
				return apperr.Storage(fmt.Sprintf("upsert cart line %s", l.CatalogID), err)
			}
		}
		return nil
	})
}

func (c sqlCartStore) SetQuantity(ctx context.Context, sessionID, catalogID, variant string, quantity int, now time.Time) (bool, error) {
	found := false
	err := c.s.withTx(ctx, "set cart quantity", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE cart_items SET quantity = $1 WHERE session_id = $2 AND catalog_id = $3 AND variant = $4`,
			quantity, sessionID, catalogID, variant,
		)
		if err != nil {
			return apperr.Storage("set cart quantity", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperr.Storage("set cart quantity", err)
		}
		if n == 0 {
			return nil
		}
		found = true
		return touchCart(ctx, tx, sessionID, now)
	})
	return found, err
}

func (c sqlCartStore) DeleteLine(ctx context.Context, sessionID, catalogID, variant string, now time.Time) error {
	return c.s.withTx(ctx, "delete cart line", func(tx *sql.Tx) error {
		if err := touchCart(ctx, tx, sessionID, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE session_id = $1 AND catalog_id = $2 AND variant = $3`,
			sessionID, catalogID, variant,
		)
		if err != nil {
			return apperr.Storage("delete cart line", err)
		}
		return nil
	})
}

func (c sqlCartStore) Clear(ctx context.Context, sessionID string, now time.Time) error {
	return c.s.withTx(ctx, "clear cart", func(tx *sql.Tx) error {
		return clearCart(ctx, tx, sessionID, now)
	})
}

func clearCart(ctx context.Context, q querier, sessionID string, now time.Time) error {
	if err := touchCart(ctx, q, sessionID, now); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE session_id = $1`, sessionID); err != nil {
		return apperr.Storage("clear cart", err)
	}
	return nil
}

func (c sqlCartStore) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	out := &cart.Cart{SessionID: sessionID, Lines: []cart.Line{}}

	var createdAt, updatedAt string
	err := c.s.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM carts WHERE session_id = $1`, sessionID,
	).Scan(&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return nil, apperr.Storage("get cart", err)
	}
	if out.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, apperr.Storage("get cart", err)
	}
	if out.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, apperr.Storage("get cart", err)
	}

	lines, err := readCartLines(ctx, c.s.db, sessionID)
	if err != nil {
		return nil, err
	}
	out.Lines = lines
	return out, nil
}

func readCartLines(ctx context.Context, q querier, sessionID string) ([]cart.Line, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT catalog_id, variant, name, quantity, unit_price, currency, notes
		 FROM cart_items WHERE session_id = $1 ORDER BY position`, sessionID,
	)
	if err != nil {
		return nil, apperr.Storage("read cart lines", err)
	}
	defer rows.Close()

	lines := []cart.Line{}
	for rows.Next() {
		var (
			l     cart.Line
			notes sql.NullString
		)
		if err := rows.Scan(&l.CatalogID, &l.Variant, &l.Name, &l.Quantity, &l.UnitPrice, &l.Currency, &notes); err != nil {
			return nil, apperr.Storage("scan cart line", err)
		}
		l.Notes = stringPtr(notes)
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("read cart lines", err)
	}
	return lines, nil
}
