package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pawnmarket-contract-engine/internal/api_gateway/middleware"
)

// actorID reads the caller identity set by the upstream auth proxy. It
// responds with 401 and returns false when the header is absent or malformed.
func actorID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(middleware.ActorIDHeader)
	if raw == "" {
		RespondUnauthorized(c, "Missing "+middleware.ActorIDHeader+" header")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondUnauthorized(c, "Invalid "+middleware.ActorIDHeader+" header")
		return uuid.Nil, false
	}
	return id, true
}

// pathID parses a uuid path parameter, responding with 400 when it is malformed.
func pathID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondBadRequest(c, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}
