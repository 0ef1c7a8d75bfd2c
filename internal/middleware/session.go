package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
)

// CheckDeviceSession validates the JWT's JTI against the session id stored
// on the user row. A mismatch means a later login claimed the account on
// another device or an admin revoked the session; either way this token is
// dead and the client must log in again.
func CheckDeviceSession(sessions *service.SessionService, audit *service.AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		err := sessions.Validate(c.Request.Context(), claims.UserID, claims.ID)
		if err == nil {
			c.Next()
			return
		}

		switch {
		case errors.Is(err, service.ErrAccountLocked):
			audit.Record(c.Request.Context(), model.AuditEvent{
				UserID: &claims.UserID,
				Event:  service.AuditSessionDenied,
				Detail: "account locked",
			})
			response.AbortFail(c, http.StatusForbidden, response.ErrAccountLocked)
		case errors.Is(err, service.ErrSessionDenied):
			audit.Record(c.Request.Context(), model.AuditEvent{
				UserID: &claims.UserID,
				Event:  service.AuditSessionDenied,
				Detail: "session id mismatch or idle timeout",
			})
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		default:
			response.AbortFail(c, http.StatusInternalServerError, response.ErrInternal)
		}
	}
}
