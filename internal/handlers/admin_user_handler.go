package handlers

import (
	"net/http"
	"time"

	"oracle-backend/internal/cryptoutil"
	"oracle-backend/internal/dto"
	"oracle-backend/internal/models"
	"oracle-backend/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminUserHandler registers users with their OTP seed. The seed is sealed
// before it touches the database and is never returned by any endpoint.
type AdminUserHandler struct {
	users   repository.UserRepository
	seedBox *cryptoutil.SeedBox
	logger  *logrus.Logger
}

// NewAdminUserHandler creates an admin user handler.
func NewAdminUserHandler(users repository.UserRepository, seedBox *cryptoutil.SeedBox, logger *logrus.Logger) *AdminUserHandler {
	return &AdminUserHandler{users: users, seedBox: seedBox, logger: logger}
}

// AddUser handles POST /admin/add-user. Re-registration overwrites the
// previous record.
func (h *AdminUserHandler) AddUser(c *gin.Context) {
	var req dto.RegisterUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "bad_payload"})
		return
	}

	sealed, err := h.seedBox.Seal(req.Seed)
	if err != nil {
		h.logger.WithError(err).Error("Failed to seal user seed")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "server_error"})
		return
	}

	user := &models.User{
		UserID:    req.UserID,
		SecretEnc: sealed,
		TrapID:    req.TrapID,
		ChainID:   req.ChainID,
		CreatedAt: time.Now().Unix(),
	}
	if err := h.users.Upsert(c.Request.Context(), user); err != nil {
		h.logger.WithError(err).WithField("user_id", req.UserID).Error("Failed to store user")
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "server_error"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"user_id":  req.UserID,
		"trap_id":  req.TrapID,
		"chain_id": req.ChainID,
	}).Info("Registered user")

	c.JSON(http.StatusOK, dto.OKResponse{OK: true})
}
