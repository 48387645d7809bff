package order

import (
	"context"
	"fmt"
	"sort"
	"time"
)

const topProductsLimit = 10

type ProductSales struct {
	CatalogID string `json:"catalog_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	Revenue   int64  `json:"revenue"`
}

type Analytics struct {
	TotalOrders       int            `json:"total_orders"`
	TotalRevenue      int64          `json:"total_revenue"`
	AverageOrderValue int64          `json:"average_order_value"`
	OrdersByStatus    map[Status]int `json:"orders_by_status"`
	TopProducts       []ProductSales `json:"top_products"`
}

type AnalyticsFilter struct {
	SessionID string
	From      *time.Time
	To        *time.Time
}

// Analytics aggregates orders in the filter window. Cancelled orders are
// counted by status but excluded from revenue and product sales.
func (s *Service) Analytics(ctx context.Context, f AnalyticsFilter) (*Analytics, error) {
	orders, err := s.store.List(ctx, ListFilter{SessionID: f.SessionID, From: f.From, To: f.To})
	if err != nil {
		return nil, fmt.Errorf("order analytics: %w", err)
	}
	return Summarize(orders), nil
}

func Summarize(orders []*Order) *Analytics {
	a := &Analytics{
		OrdersByStatus: make(map[Status]int),
		TopProducts:    []ProductSales{},
	}
	sales := make(map[string]*ProductSales)
	revenueOrders := 0

	for _, o := range orders {
		a.TotalOrders++
		a.OrdersByStatus[o.Status]++
		if o.Status == StatusCancelled {
			continue
		}
		revenueOrders++
		a.TotalRevenue += o.Total
		for _, l := range o.Lines {
			ps, ok := sales[l.CatalogID]
			if !ok {
				ps = &ProductSales{CatalogID: l.CatalogID, Name: l.Name}
				sales[l.CatalogID] = ps
			}
			ps.Quantity += l.Quantity
			ps.Revenue += l.LineTotal
		}
	}
	if revenueOrders > 0 {
		a.AverageOrderValue = a.TotalRevenue / int64(revenueOrders)
	}

	for _, ps := range sales {
		a.TopProducts = append(a.TopProducts, *ps)
	}
	sort.Slice(a.TopProducts, func(i, j int) bool {
		if a.TopProducts[i].Quantity != a.TopProducts[j].Quantity {
			return a.TopProducts[i].Quantity > a.TopProducts[j].Quantity
		}
		return a.TopProducts[i].CatalogID < a.TopProducts[j].CatalogID
	})
	if len(a.TopProducts) > topProductsLimit {
		a.TopProducts = a.TopProducts[:topProductsLimit]
	}
	return a
}
