package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/doctor-voice-api/internal/middleware"
	"github.com/noah-isme/doctor-voice-api/internal/service"
	appErrors "github.com/noah-isme/doctor-voice-api/pkg/errors"
	"github.com/noah-isme/doctor-voice-api/pkg/response"
)

// actorFromContext builds the service actor from JWT claims. Unauthenticated
// callers (webhooks) act as the system user.
func actorFromContext(c *gin.Context) service.Actor {
	actor := service.SystemActor
	actor.IP = c.ClientIP()
	claims := middleware.Claims(c)
	if claims == nil {
		return actor
	}
	actor.ID = claims.UserID
	actor.Name = claims.FullName
	actor.Role = claims.Role
	actor.MRCode = claims.MRCode
	return actor
}

func bindJSON(c *gin.Context, dest interface{}, msg string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, msg))
		return false
	}
	return true
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
