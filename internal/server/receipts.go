package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/thinktestai/thinktest/internal/payment/domain"
	"github.com/thinktestai/thinktest/internal/receipt"
)

// GetPurchaseReceipt renders a PDF for a purchase that was paid. Refunded
// purchases keep their receipt with the refund date printed on it.
func (s *Server) GetPurchaseReceipt(c *gin.Context) {
	intentID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	intent, err := s.paymentSvc.GetPurchase(ctx, userIDFromContext(c), intentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if intent.CompletedAt == nil ||
		(intent.Status != paymentdomain.IntentStatusSucceeded && intent.Status != paymentdomain.IntentStatusRefunded) {
		AbortWithError(c, paymentdomain.ErrInvalidIntentState)
		return
	}

	packageName := intent.PackageID
	for _, pkg := range s.paymentSvc.Packages() {
		if pkg.ID == intent.PackageID {
			packageName = pkg.Name
			break
		}
	}

	pdf, err := s.receipts.Generate(ctx, receipt.Data{
		Number:      intent.ID.String(),
		CustomerID:  intent.UserID.String(),
		PackageName: packageName,
		Credits:     intent.CreditsToAdd,
		Amount:      intent.Amount,
		Currency:    intent.Currency,
		Reference:   intent.ExternalReference,
		PaidAt:      *intent.CompletedAt,
		RefundedAt:  intent.RefundedAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt-%s.pdf"`, intent.ID.String()))
	c.Data(http.StatusOK, receipt.ContentType, pdf)
}
