package api

import (
	"brokerage_system/internal/payment"   // Payment gateway
	"brokerage_system/internal/processor" // Processor wire format
	"io"                                  // Body reading
	"net/http"                            // HTTP status codes

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

const maxWebhookBody = 1 << 20 // Largest webhook payload accepted

// ProcessorWebhookHandler applies a signed processor webhook. The delivery is
// always acknowledged with 200 so the processor stops retrying; failures are
// logged and left for verification or the sweep.
func ProcessorWebhookHandler(gw *payment.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody)) // Raw body, signature covers these bytes
		if err != nil {
			logrus.WithField("error", err.Error()).Warn("Webhook body unreadable")
			c.JSON(http.StatusOK, gin.H{"received": true}) // Acknowledge anyway
			return
		}
		txn, err := gw.HandleWebhook(c.Request.Context(), body, c.GetHeader(processor.SignatureHeader))
		if err != nil {
			// Signature and mismatch failures are already logged by the gateway
			logrus.WithField("error", err.Error()).Info("Webhook acknowledged without effect")
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		fields := logrus.Fields{"received": true} // Log fields
		if txn != nil {
			fields["reference"] = txn.Reference // Internal reference
			fields["status"] = txn.Status       // Resulting status
		}
		logrus.WithFields(fields).Debug("Webhook applied")
		c.JSON(http.StatusOK, gin.H{"received": true}) // Acknowledge the delivery
	}
}
