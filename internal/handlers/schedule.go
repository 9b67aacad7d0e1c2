package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aromabridge/internal/models"
	"aromabridge/internal/session"
)

// parseWeek reads the optional ?week= query parameter, defaulting to the
// current weekday (0=Sunday).
func parseWeek(c *gin.Context) (models.Weekday, bool) {
	raw := c.Query("week")
	if raw == "" {
		return models.Weekday(time.Now().Weekday()), true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || !models.Weekday(n).Valid() {
		return 0, false
	}
	return models.Weekday(n), true
}

func (h *Handler) getSchedule(c *gin.Context) {
	id := c.Param("id")
	day, ok := parseWeek(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week must be 0-6"})
		return
	}

	blocks, err := h.services.Schedule.Get(c.Request.Context(), id, day)
	if err != nil {
		h.scheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"week": day, "blocks": blocks})
}

type setScheduleInput struct {
	Blocks []models.ScheduleBlock `json:"blocks" binding:"required"`
}

func (h *Handler) setSchedule(c *gin.Context) {
	id := c.Param("id")
	var input setScheduleInput
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	if err := h.services.Schedule.Set(c.Request.Context(), id, input.Blocks); err != nil {
		h.scheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) setScheduleBlock(c *gin.Context) {
	id := c.Param("id")
	n, ok := parseBlockNumber(c)
	if !ok {
		return
	}

	var block models.ScheduleBlock
	if ok := h.bindJSONOrBadRequest(c, &block); !ok {
		return
	}

	if err := h.services.Schedule.SetBlock(c.Request.Context(), id, n, block); err != nil {
		h.scheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) clearScheduleBlock(c *gin.Context) {
	id := c.Param("id")
	n, ok := parseBlockNumber(c)
	if !ok {
		return
	}

	if err := h.services.Schedule.ClearBlock(c.Request.Context(), id, n); err != nil {
		h.scheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) syncSchedule(c *gin.Context) {
	id := c.Param("id")
	blocks, err := h.services.Schedule.Sync(c.Request.Context(), id)
	if err != nil {
		h.scheduleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

func parseBlockNumber(c *gin.Context) (int, bool) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 || n > models.ScheduleSlots {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block number must be 1-5"})
		return 0, false
	}
	return n, true
}

// scheduleError maps orchestrator failures to HTTP statuses: a timeout is
// the vendor not answering in time, not a client mistake.
func (h *Handler) scheduleError(c *gin.Context, err error) {
	if h.log != nil {
		h.log.Errorw("schedule_request_failed", "err", err)
	}
	switch {
	case errors.Is(err, session.ErrScheduleTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "no schedule data from device"})
	case errors.Is(err, session.ErrNoSession):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
