package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

type APIKeyHandler struct {
	log  *logger.Logger
	keys services.APIKeyService
}

func NewAPIKeyHandler(log *logger.Logger, keys services.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{log: log.With("handler", "APIKeyHandler"), keys: keys}
}

type createAPIKeyReq struct {
	Name string `json:"name"`
}

// POST /api/workspaces/:id/api-keys
//
// The plaintext key is only ever present in this response.
func (h *APIKeyHandler) Create(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var req createAPIKeyReq
	if !bindJSON(c, &req) {
		return
	}
	created, err := h.keys.Create(dbcOf(c), wsID, req.Name)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondCreated(c, gin.H{"api_key": created})
}

// GET /api/workspaces/:id/api-keys
func (h *APIKeyHandler) List(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	keys, err := h.keys.List(dbcOf(c), wsID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"api_keys": keys})
}

// DELETE /api/workspaces/:id/api-keys/:keyId
func (h *APIKeyHandler) Revoke(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	keyID, ok := uuidParam(c, "keyId", "invalid_key_id")
	if !ok {
		return
	}
	if err := h.keys.Revoke(dbcOf(c), wsID, keyID); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondNoContent(c)
}
