package http

import (
	"net/http"

	"storefront/internal/domain"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Login(c *gin.Context) {
	var creds domain.Credentials
	if err := c.ShouldBindJSON(&creds); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}

	tokens, err := h.auth.Login(c.Request.Context(), creds)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(TokenCookie, tokens.AccessToken, 0, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	me, err := h.auth.Me(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, me)
}
