// Package receipt renders PDF receipts for settled credit purchases.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	appconfig "github.com/thinktestai/thinktest/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("receipt",
	fx.Provide(New),
)

var ErrIncompleteReceipt = errors.New("incomplete_receipt")

const (
	dateLayout  = "January 2, 2006"
	ContentType = "application/pdf"
)

// Data is everything printed on a receipt. Amount is in minor units.
type Data struct {
	Number      string
	CustomerID  string
	PackageName string
	Credits     decimal.Decimal
	Amount      int64
	Currency    string
	Reference   string
	PaidAt      time.Time
	RefundedAt  *time.Time
}

type Generator interface {
	Generate(ctx context.Context, data Data) ([]byte, error)
}

type PDFGenerator struct {
	issuer string
}

func New(cfg appconfig.Config) Generator {
	issuer := strings.TrimSpace(cfg.ReceiptIssuer)
	if issuer == "" {
		issuer = "ThinkTest"
	}
	return &PDFGenerator{issuer: issuer}
}

func (g *PDFGenerator) Generate(ctx context.Context, data Data) ([]byte, error) {
	if strings.TrimSpace(data.Number) == "" || data.PaidAt.IsZero() {
		return nil, ErrIncompleteReceipt
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	total := FormatAmount(data.Amount, data.Currency)

	m.AddRow(30,
		text.NewCol(8, "Receipt", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
		text.NewCol(4, g.issuer, props.Text{
			Size:  12,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	m.AddRow(25,
		col.New(6).Add(
			text.New("Receipt number: "+data.Number, props.Text{Top: 0}),
			text.New("Date paid: "+data.PaidAt.UTC().Format(dateLayout), props.Text{Top: 5}),
			text.New("Payment reference: "+data.Reference, props.Text{Top: 10}),
		),
		col.New(6).Add(
			text.New("Billed to", props.Text{Style: fontstyle.Bold, Align: align.Right}),
			text.New("Account "+data.CustomerID, props.Text{Top: 5, Align: align.Right}),
		),
	)

	m.AddRow(15,
		text.NewCol(12, total+" paid on "+data.PaidAt.UTC().Format(dateLayout), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Top:   5,
		}),
	)

	m.AddRow(10,
		text.NewCol(6, "Description", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Credits", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(12,
		text.NewCol(6, fmt.Sprintf("%s credit package", data.PackageName), props.Text{Size: 9}),
		text.NewCol(3, data.Credits.String(), props.Text{Size: 9, Align: align.Right}),
		text.NewCol(3, total, props.Text{Size: 9, Align: align.Right}),
	)

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total", props.Text{Size: 9, Style: fontstyle.Bold}),
		text.NewCol(3, total, props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}),
	)

	if data.RefundedAt != nil {
		m.AddRow(15,
			text.NewCol(12, "Refunded on "+data.RefundedAt.UTC().Format(dateLayout), props.Text{
				Size:  11,
				Style: fontstyle.Bold,
				Top:   5,
			}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

// FormatAmount renders minor units with two decimals and the ISO currency code.
func FormatAmount(minor int64, currency string) string {
	return decimal.New(minor, -2).StringFixed(2) + " " + strings.ToUpper(strings.TrimSpace(currency))
}
