package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"table-booking-backend/internal/apperr"
)

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Login exchanges staff credentials for a bearer token. The login form posts
// urlencoded fields; JSON is accepted too.
func (h *Handler) Login(c *gin.Context) {
	if h.auth == nil {
		h.fail(c, fmt.Errorf("login is disabled: %w", apperr.ErrAuth))
		return
	}
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.fail(c, apperr.ErrAuth)
		return
	}
	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}
