package handlers

import (
	"net/http"
	"strconv"

	"oracle-backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OperatorHandler exposes read-only ledger and submission views for
// operators. The permanently-unresolved path (chain write retries exhausted)
// deliberately leaves submissions behind; these endpoints are how an
// operator finds them.
type OperatorHandler struct {
	processed   repository.ProcessedRequestRepository
	submissions repository.SubmissionRepository
	logger      *logrus.Logger
}

// NewOperatorHandler creates an operator handler.
func NewOperatorHandler(
	processed repository.ProcessedRequestRepository,
	submissions repository.SubmissionRepository,
	logger *logrus.Logger,
) *OperatorHandler {
	return &OperatorHandler{processed: processed, submissions: submissions, logger: logger}
}

// GetProcessedRequest handles GET /admin/processed/:requestId
func (h *OperatorHandler) GetProcessedRequest(c *gin.Context) {
	requestID := c.Param("requestId")

	record, err := h.processed.GetByRequestID(c.Request.Context(), requestID)
	if err != nil {
		h.logger.WithError(err).Error("Ledger lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "server_error"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": record})
}

// ListProcessedRequests handles GET /admin/processed?page=&pageSize=
func (h *OperatorHandler) ListProcessedRequests(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	records, total, err := h.processed.List(c.Request.Context(), page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("Ledger list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"data":     records,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// ListPendingSubmissions handles GET /admin/submissions. Codes are masked;
// operators need correlation keys, not credentials.
func (h *OperatorHandler) ListPendingSubmissions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 500 {
		limit = 100
	}

	submissions, err := h.submissions.ListPending(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Submission list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "server_error"})
		return
	}

	type pendingSubmission struct {
		RequestID string `json:"requestId"`
		UserID    string `json:"userId"`
		CreatedAt int64  `json:"createdAt"`
	}
	out := make([]pendingSubmission, 0, len(submissions))
	for _, s := range submissions {
		out = append(out, pendingSubmission{RequestID: s.RequestID, UserID: s.UserID, CreatedAt: s.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": out})
}
