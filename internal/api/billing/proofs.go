package billing

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"course-payments/internal/api/apierr"
	"course-payments/internal/app/http/middleware"
	"course-payments/internal/payments"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// multipart envelope allowance on top of the file itself
const formOverhead = 64 << 10

// UploadProof handles POST /invoices/:id/proofs with a multipart "file".
func (h *Handler) UploadProof(c *gin.Context) {
	id, ok := apierr.ParamID(c, "id")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxProofBytes+formOverhead)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable file"})
		return
	}
	defer f.Close()

	proof, err := h.proofs.Upload(c.Request.Context(), payments.UploadInput{
		Actor:     middleware.Actor(c),
		InvoiceID: id,
		Filename:  fh.Filename,
		Body:      f,
	})
	if err != nil {
		apierr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, proof)
}

// ProofFile streams a stored proof. Shared by the buyer and admin routes;
// ownership is checked by the workflow.
func ProofFile(proofs *payments.ProofService, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := apierr.ParamID(c, "id")
		if !ok {
			return
		}
		rc, proof, err := proofs.OpenFile(c.Request.Context(), middleware.Actor(c), id)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		defer rc.Close()

		c.Header("Content-Type", proof.MimeType)
		c.Header("Content-Length", strconv.FormatInt(proof.Size, 10))
		c.Header("Content-Disposition", "inline; filename="+strconv.Quote(proof.StoredName))
		c.Header("X-Content-Type-Options", "nosniff")
		c.Status(http.StatusOK)
		if _, err := io.Copy(c.Writer, rc); err != nil {
			logger.Warn("proof stream interrupted", zap.Uint("proof_id", id), zap.Error(err))
		}
	}
}
