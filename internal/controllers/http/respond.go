package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/services"
	apperrors "storefront/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	NetworkIssueMessage = "Network connection issue. Please check your internet and try again."
	UnexpectedMessage   = "Something went wrong. Please try again."
	LoginPath           = "/login"
)

// domainStatus overrides the default 400 for domain errors that mean
// something more specific to the client.
var domainStatus = map[string]int{
	services.CodeOrderNotFound:     http.StatusNotFound,
	services.CodeOrderNotPayable:   http.StatusConflict,
	services.CodePaymentInProgress: http.StatusConflict,
}

// loginRedirect sends the shopper back to the current page after logging in.
func loginRedirect(c *gin.Context) string {
	return LoginPath + "?returnUrl=" + url.QueryEscape(c.Request.URL.RequestURI())
}

// errorResponse maps an error from the service layer to a status and body.
func errorResponse(c *gin.Context, err error) (int, gin.H) {
	var (
		authErr *apperrors.UnauthorizedError
		rateErr *apperrors.RateLimitError
		valErr  *apperrors.ValidationError
		domErr  *apperrors.DomainError
		netErr  *apperrors.NetworkError
		srvErr  *apperrors.ServerError
		decErr  *apperrors.DecodeError
	)

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized, gin.H{"error": authErr.Error(), "redirect": loginRedirect(c)}
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(rateErr.RetryAfter.Seconds())))
		}
		return http.StatusTooManyRequests, gin.H{"error": rateErr.Error()}
	case errors.As(err, &valErr):
		body := gin.H{"error": valErr.Error()}
		if valErr.Code != "" {
			body["code"] = valErr.Code
		}
		if len(valErr.Fields) > 0 {
			body["fields"] = valErr.Fields
			return http.StatusUnprocessableEntity, body
		}
		return http.StatusBadRequest, body
	case errors.As(err, &domErr):
		body := gin.H{"error": domErr.Error()}
		if domErr.Code != "" {
			body["code"] = domErr.Code
		}
		if status, ok := domainStatus[domErr.Code]; ok {
			return status, body
		}
		return http.StatusBadRequest, body
	case errors.As(err, &netErr):
		return http.StatusBadGateway, gin.H{"error": NetworkIssueMessage}
	case errors.As(err, &srvErr):
		if srvErr.StatusCode == http.StatusServiceUnavailable {
			return http.StatusServiceUnavailable, gin.H{"error": srvErr.Error()}
		}
		return http.StatusBadGateway, gin.H{"error": srvErr.Error()}
	case errors.As(err, &decErr):
		return http.StatusBadGateway, gin.H{"error": UnexpectedMessage}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, gin.H{"error": NetworkIssueMessage}
	}
	return http.StatusInternalServerError, gin.H{"error": UnexpectedMessage}
}

// respondError writes the mapped error, merging extra into the body.
func (h *Handler) respondError(c *gin.Context, err error, extra gin.H) {
	status, body := errorResponse(c, err)
	for k, v := range extra {
		body[k] = v
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, body)
}
