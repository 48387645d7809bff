package email

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/example/agent-commerce/internal/domain/pricing"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	CatalogID string
	Name      string
	Variant   string
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// Confirmation is everything the confirmation email shows.
type Confirmation struct {
	OrderID      string
	CustomerName string
	Items        []OrderItem
	Total        int64
	Currency     string
}

type itemRow struct {
	Name      string
	Quantity  int
	UnitPrice string
	LineTotal string
}

var confirmationTemplate = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: #2f6f4f; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">{{if .CustomerName}}Hi {{.CustomerName}}, we{{else}}We{{end}} have received your order.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderID}}</p>
		</div>

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left;">Item</th>
					<th style="padding: 12px; text-align: center;">Qty</th>
					<th style="padding: 12px; text-align: right;">Price</th>
					<th style="padding: 12px; text-align: right;">Subtotal</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Rows}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.UnitPrice}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{.LineTotal}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; margin-left: 10px;">{{.Total}}</span>
		</div>

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">This message was sent automatically.</p>
	</div>
</body>
</html>`))

// BuildOrderConfirmationBody renders the HTML body for an order confirmation.
func BuildOrderConfirmationBody(c Confirmation) (string, error) {
	rows := make([]itemRow, len(c.Items))
	for i, item := range c.Items {
		name := item.Name
		if name == "" {
			name = item.CatalogID
		}
		if item.Variant != "" {
			name += " (" + item.Variant + ")"
		}
		rows[i] = itemRow{
			Name:      name,
			Quantity:  item.Quantity,
			UnitPrice: pricing.Format(item.UnitPrice, c.Currency),
			LineTotal: pricing.Format(item.LineTotal, c.Currency),
		}
	}

	var b strings.Builder
	err := confirmationTemplate.Execute(&b, map[string]any{
		"OrderID":      c.OrderID,
		"CustomerName": c.CustomerName,
		"Rows":         rows,
		"Total":        pricing.Format(c.Total, c.Currency),
	})
	if err != nil {
		return "", fmt.Errorf("render confirmation: %w", err)
	}
	return b.String(), nil
}
