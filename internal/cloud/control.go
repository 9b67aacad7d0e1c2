package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"aromabridge/internal/models"
)

// WorkTimeEntry is one slot of the vendor's workSetApp payload. Durations
// travel as decimal strings; Enabled is 0/1.
type WorkTimeEntry struct {
	StartTime        string `json:"startTime"`
	EndTime          string `json:"endTime"`
	WorkDuration     string `json:"workDuration"`
	PauseDuration    string `json:"pauseDuration"`
	Enabled          int    `json:"enabled"`
	ConsistenceLevel int    `json:"consistenceLevel"`
}

// scheduleWriteRequest is the JSON body of the schedule write endpoint.
type scheduleWriteRequest struct {
	DeviceID     string          `json:"deviceId"`
	UserID       int64           `json:"userId"`
	WorkTimeList []WorkTimeEntry `json:"workTimeList"`
	Week         []int           `json:"week"`
}

func onOff(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

// SetPower switches the diffuser on or off. Fire-and-forget: the HTTP
// status is the only confirmation.
func (c *Client) SetPower(ctx context.Context, deviceID string, on bool) error {
	form := url.Values{
		"deviceId": {deviceID},
		"onOff":    {onOff(on)},
		"userId":   {strconv.FormatInt(c.UserID(), 10)},
	}
	return c.postControl(ctx, pathSwitchPower, form, "set power")
}

// SetFan switches the fan on or off for devices that have one.
func (c *Client) SetFan(ctx context.Context, deviceID string, on bool) error {
	form := url.Values{
		"deviceId": {deviceID},
		"fan":      {onOff(on)},
		"userId":   {strconv.FormatInt(c.UserID(), 10)},
	}
	return c.postControl(ctx, pathSwitchFan, form, "set fan")
}

func (c *Client) postControl(ctx context.Context, path string, form url.Values, op string) error {
	resp, err := c.postForm(ctx, path, form, true)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s status %d", ErrRemoteRejection, op, resp.StatusCode)
	}
	return nil
}

// WriteSchedule posts a full 5-slot schedule. There is no synchronous
// confirmation; the HTTP verdict is all the vendor offers.
func (c *Client) WriteSchedule(ctx context.Context, deviceID string, entries []WorkTimeEntry, week []models.Weekday) error {
	days := make([]int, 0, len(week))
	for _, d := range week {
		days = append(days, int(d))
	}
	body := scheduleWriteRequest{
		DeviceID:     deviceID,
		UserID:       c.UserID(),
		WorkTimeList: entries,
		Week:         days,
	}
	resp, err := c.postJSON(ctx, pathScheduleWrite, body)
	if err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: write schedule status %d", ErrRemoteRejection, resp.StatusCode)
	}
	return nil
}

// Activate pings the vendor's control-page endpoint for a device. Without
// this the socket stays silent for the device; it mimics opening the
// mobile app's control view.
func (c *Client) Activate(ctx context.Context, deviceID string) error {
	query := url.Values{
		"isOpenPage": {"0"},
		"userId":     {strconv.FormatInt(c.UserID(), 10)},
	}
	resp, err := c.get(ctx, fmt.Sprintf(pathActivate, deviceID), query)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: activate status %d", ErrRemoteRejection, resp.StatusCode)
	}
	return nil
}

// RequestSchedule triggers delivery of a day's schedule. The HTTP response
// only acknowledges the trigger; the data arrives asynchronously as a
// WORK_TIME_FREQUENCY frame on the device's socket.
func (c *Client) RequestSchedule(ctx context.Context, deviceID string, day models.Weekday) error {
	query := url.Values{
		"userId": {strconv.FormatInt(c.UserID(), 10)},
		"week":   {strconv.Itoa(int(day))},
	}
	resp, err := c.get(ctx, fmt.Sprintf(pathScheduleRequest, deviceID), query)
	if err != nil {
		return fmt.Errorf("request schedule: %w", err)
	}
	drainClose(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: request schedule status %d", ErrRemoteRejection, resp.StatusCode)
	}
	return nil
}
