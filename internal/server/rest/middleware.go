package rest

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/server/models"
	"github.com/gin-gonic/gin"
)

const userKey = "chatgate_user"

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if u, ok := currentUser(c); ok {
			args = append(args, "user_id", u.ID)
		}
		if len(c.Errors) > 0 {
			s.logger.Error(c.Request.Context(), "request failed", append(args, "error", c.Errors.String())...)
			return
		}
		s.logger.Info(c.Request.Context(), "request completed", args...)
	}
}

// bearerToken extracts the session token from "Token <t>", "Bearer <t>" or
// a bare "<t>".
func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return scheme
	}
	if !strings.EqualFold(scheme, common.TokenScheme) && !strings.EqualFold(scheme, common.BearerScheme) {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
		if token == "" {
			respondError(c, common.ErrorUnauthorized)
			return
		}
		user, err := s.svc.Users.Authenticate(c.Request.Context(), token)
		if err != nil {
			respondError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			respondError(c, common.ErrorUnauthorized)
			return
		}
		if !s.svc.Users.IsAdmin(user) {
			respondError(c, common.ErrorForbidden)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok && u != nil
}
