package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aromabridge/internal/models"
)

// deviceView is a device plus its live availability.
type deviceView struct {
	models.Device
	Available bool `json:"available"`
}

func (h *Handler) listDevices(c *gin.Context) {
	devices := h.services.List()
	out := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, deviceView{Device: d, Available: h.services.Available(d.ID)})
	}
	c.JSON(http.StatusOK, gin.H{"devices": out})
}

func (h *Handler) deviceState(c *gin.Context) {
	id := c.Param("id")
	snap, ok := h.services.State(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

type toggleInput struct {
	On *bool `json:"on" binding:"required"`
}

func (h *Handler) setPower(c *gin.Context) {
	id := c.Param("id")
	var input toggleInput
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	if err := h.services.SetPower(c.Request.Context(), id, *input.On); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "power command rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) setFan(c *gin.Context) {
	id := c.Param("id")
	device, ok := h.services.Devices.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown device"})
		return
	}
	if !device.HasFan {
		c.JSON(http.StatusBadRequest, gin.H{"error": "device has no fan"})
		return
	}

	var input toggleInput
	if ok := h.bindJSONOrBadRequest(c, &input); !ok {
		return
	}

	if err := h.services.SetFan(c.Request.Context(), id, *input.On); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "fan command rejected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
