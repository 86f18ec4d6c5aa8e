package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"course-payments/internal/errdefs"
	"course-payments/internal/logging"
	"course-payments/internal/payments"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxBodyBytes = 65536

type EventProcessor interface {
	HandleGatewayEvent(ctx context.Context, ev *payments.Event) (*payments.Outcome, error)
}

// Deduper short-circuits repeated deliveries before they reach the database.
type Deduper interface {
	Claim(ctx context.Context, provider, eventID string) (bool, error)
	Release(ctx context.Context, provider, eventID string) error
}

type Handler struct {
	verifiers map[string]payments.Verifier
	processor EventProcessor
	dedup     Deduper
	logger    *zap.Logger
}

// New builds the webhook endpoint. dedup may be nil.
func New(verifiers []payments.Verifier, processor EventProcessor, dedup Deduper, logger *zap.Logger) *Handler {
	byName := make(map[string]payments.Verifier, len(verifiers))
	for _, v := range verifiers {
		byName[string(v.Provider())] = v
	}
	return &Handler{verifiers: byName, processor: processor, dedup: dedup, logger: logger}
}

// Receive handles POST /webhooks/:provider.
func (h *Handler) Receive(c *gin.Context) {
	provider := c.Param("provider")
	verifier, ok := h.verifiers[provider]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown payment provider"})
		return
	}
	log := logging.FromContext(c.Request.Context(), h.logger).With(zap.String("provider", provider))

	payload, err := readBody(c, maxBodyBytes)
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Error reading request body"})
		return
	}

	ev, err := verifier.Verify(payload, c.Request.Header)
	if err != nil {
		log.Warn("webhook verification failed", zap.Error(err))
		if errors.Is(err, errdefs.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Signature verification failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed event"})
		return
	}
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	ctx := c.Request.Context()
	if h.dedup != nil {
		fresh, err := h.dedup.Claim(ctx, provider, ev.EventID)
		if err != nil {
			log.Warn("webhook dedup unavailable", zap.Error(err))
		}
		if !fresh {
			log.Info("duplicate webhook delivery", zap.String("event_id", ev.EventID))
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
	}

	out, err := h.processor.HandleGatewayEvent(ctx, ev)
	if err != nil {
		if h.dedup != nil {
			if rerr := h.dedup.Release(context.WithoutCancel(ctx), provider, ev.EventID); rerr != nil {
				log.Warn("webhook dedup release failed", zap.Error(rerr))
			}
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Event could not be processed"})
		return
	}
	if out == nil || !out.Applied {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received", "invoice": out.Invoice.Number, "invoice_status": out.To})
}

func readBody(c *gin.Context, maxBytes int64) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
	return io.ReadAll(c.Request.Body)
}
