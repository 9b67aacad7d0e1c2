package models

// Device is a discovered diffuser. Fields are fixed at discovery time;
// only Online tracks the cloud-reported status.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	DeviceNo string `json:"device_no"`
	HasFan   bool   `json:"has_fan"`
	Online   bool   `json:"online"`
}
