package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type APIKeyMiddleware struct {
	log  *logger.Logger
	keys services.APIKeyService
}

func NewAPIKeyMiddleware(log *logger.Logger, keys services.APIKeyService) *APIKeyMiddleware {
	return &APIKeyMiddleware{log: log.With("middleware", "APIKeyMiddleware"), keys: keys}
}

// RequireAPIKey authenticates "Authorization: Bearer sk_live_..." and scopes
// the request to the key's workspace.
func (m *APIKeyMiddleware) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			abortUnauthorized(c, "missing api key")
			return
		}
		key, err := m.keys.Authenticate(c.Request.Context(), raw)
		if err != nil {
			response.RespondAPIError(c, m.log, err)
			return
		}
		rd := ctxutil.GetRequestData(c.Request.Context())
		if rd == nil {
			rd = &ctxutil.RequestData{}
		} else {
			cp := *rd
			rd = &cp
		}
		rd.APIKeyID = key.ID
		rd.WorkspaceID = key.WorkspaceID
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
