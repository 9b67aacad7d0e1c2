package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"aromabridge/internal/models"
)

// deviceListResponse mirrors the nested groups->children shape of the
// listAll endpoint.
type deviceListResponse struct {
	Data []struct {
		Children []struct {
			ID           json.Number `json:"id"`
			Text         string      `json:"text"`
			DeviceNo     string      `json:"deviceNo"`
			HasFan       int         `json:"hasFan"`
			OnlineStatus int         `json:"onlineStatus"`
		} `json:"children"`
	} `json:"data"`
}

// Devices lists every device of the authenticated account, flattening the
// vendor's group hierarchy.
func (c *Client) Devices(ctx context.Context) ([]models.Device, error) {
	resp, err := c.get(ctx, fmt.Sprintf(pathDeviceList, c.UserID()), nil)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: list devices status %d", ErrRemoteRejection, resp.StatusCode)
	}

	var dl deviceListResponse
	if err := decodeBody(resp, &dl); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	var devices []models.Device
	for _, group := range dl.Data {
		for _, child := range group.Children {
			devices = append(devices, models.Device{
				ID:       child.ID.String(),
				Name:     child.Text,
				DeviceNo: child.DeviceNo,
				HasFan:   child.HasFan == 1,
				Online:   child.OnlineStatus == 1,
			})
		}
	}
	if c.log != nil {
		c.log.Infow("cloud_devices_listed", "count", len(devices))
	}
	return devices, nil
}
