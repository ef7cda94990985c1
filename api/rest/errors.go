package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questengine/game/engine"
	"github.com/kasuganosora/questengine/game/notify"
	"github.com/kasuganosora/questengine/game/progress"
)

// errorStatus maps engine errors to an HTTP status and the message key a
// client can render.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, engine.ErrAlreadyActive):
		return http.StatusConflict, notify.KeyQuestAlreadyActive
	case errors.Is(err, engine.ErrNoPermission), errors.Is(err, engine.ErrHookRejected):
		return http.StatusForbidden, notify.KeyNoPermission
	case errors.Is(err, engine.ErrQuestLimit):
		return http.StatusForbidden, notify.KeyQuestLimit
	case errors.Is(err, engine.ErrOnCooldown):
		return http.StatusForbidden, notify.KeyQuestOnCooldown
	case errors.Is(err, engine.ErrQuestNotFound):
		return http.StatusNotFound, notify.KeyQuestNotFound
	case errors.Is(err, engine.ErrProgressNotFound):
		return http.StatusNotFound, notify.KeyQuestNotActive
	case errors.Is(err, engine.ErrNotActive):
		return http.StatusConflict, notify.KeyQuestNotActive
	case errors.Is(err, engine.ErrNotClaimable), errors.Is(err, engine.ErrPlayerOffline):
		return http.StatusConflict, ""
	case errors.Is(err, engine.ErrRewardFailed):
		return http.StatusBadGateway, ""
	}
	return http.StatusInternalServerError, ""
}

func abortWithError(c *gin.Context, err error) {
	status, key := errorStatus(err)
	body := gin.H{"error": err.Error()}
	if key != "" {
		body["code"] = key
	}
	var denied *engine.DeniedError
	if errors.As(err, &denied) {
		if denied.Remaining > 0 {
			body["remaining"] = progress.FormatDuration(denied.Remaining)
			body["remaining_seconds"] = int64(denied.Remaining.Seconds())
		}
		if denied.Limit > 0 {
			body["limit"] = denied.Limit
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}
