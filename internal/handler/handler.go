package handler

import (
	"errors"
	"net/http"

	"CloudKeep/internal/service"

	"github.com/gin-gonic/gin"
)

var (
	users  *service.UserService
	files  *service.FileService
	trash  *service.TrashManager
	ledger *service.QuotaLedger
)

// Init wires the handler layer with the core services.
func Init(u *service.UserService, f *service.FileService, t *service.TrashManager, l *service.QuotaLedger) {
	users = u
	files = f
	trash = t
	ledger = l
}

// fail maps core errors onto HTTP statuses.
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuotaExceeded):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCascade), errors.Is(err, service.ErrNameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func currentUser(c *gin.Context) uint64 {
	return c.MustGet("user_id").(uint64)
}
