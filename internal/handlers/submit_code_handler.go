package handlers

import (
	"net/http"
	"time"

	"oracle-backend/internal/dto"
	"oracle-backend/internal/metrics"
	"oracle-backend/internal/models"
	"oracle-backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SubmitCodeHandler ingests out-of-band code submissions into the
// submission store. Authentication happens in the HMAC middleware before the
// request reaches this handler.
type SubmitCodeHandler struct {
	submissions repository.SubmissionRepository
	logger      *logrus.Logger
}

// NewSubmitCodeHandler creates a submit-code handler.
func NewSubmitCodeHandler(submissions repository.SubmissionRepository, logger *logrus.Logger) *SubmitCodeHandler {
	return &SubmitCodeHandler{submissions: submissions, logger: logger}
}

// SubmitCode handles POST /submit-code
func (h *SubmitCodeHandler) SubmitCode(c *gin.Context) {
	var req dto.SubmitCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "bad_payload"})
		return
	}

	submission := &models.Submission{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Code:      req.Code,
		CreatedAt: time.Now().Unix(),
	}
	if err := h.submissions.Put(c.Request.Context(), submission); err != nil {
		h.logger.WithError(err).WithField("request_id", req.RequestID).Error("Failed to store submission")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "server_error"})
		return
	}

	metrics.SubmissionsStored.Inc()
	h.logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"user_id":    req.UserID,
	}).Info("Stored code submission")

	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}
