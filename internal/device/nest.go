package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sdmBaseURL = "https://smartdevicemanagement.googleapis.com/v1"

// nestAdapter drives a Nest thermostat through the Smart Device Management
// API. Setpoint commands use the ThermostatTemperatureSetpoint trait.
type nestAdapter struct {
	client   *http.Client
	baseURL  string
	deviceID string
	token    string
}

func newNestAdapter(deviceID, token string) *nestAdapter {
	return &nestAdapter{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  sdmBaseURL,
		deviceID: deviceID,
		token:    token,
	}
}

func (a *nestAdapter) IsOnline(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/"+a.deviceID, nil)
	if err != nil {
		return false, transientErr("build device request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)

	resp, err := a.client.Do(req)
	if err != nil {
		return false, transientErr("fetch device", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, transientErr(fmt.Sprintf("device fetch returned %d", resp.StatusCode), nil)
	}

	var body struct {
		Traits struct {
			Connectivity struct {
				Status string `json:"status"`
			} `json:"sdm.devices.traits.Connectivity"`
		} `json:"traits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, transientErr("decode device", err)
	}
	return body.Traits.Connectivity.Status == "ONLINE", nil
}

func (a *nestAdapter) SetTemperature(ctx context.Context, value float64, mode Mode) error {
	if value < 50 || value > 90 {
		return invalidErr(fmt.Sprintf("setpoint %.1f outside supported range 50-90", value))
	}

	command := "sdm.devices.commands.ThermostatTemperatureSetpoint.SetHeat"
	field := "heatCelsius"
	if mode == ModeCool {
		command = "sdm.devices.commands.ThermostatTemperatureSetpoint.SetCool"
		field = "coolCelsius"
	}
	payload, err := json.Marshal(map[string]any{
		"command": command,
		"params":  map[string]float64{field: fahrenheitToCelsius(value)},
	})
	if err != nil {
		return transientErr("marshal command", err)
	}

	url := a.baseURL + "/" + a.deviceID + ":executeCommand"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return transientErr("build command request", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return transientErr("execute command", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusBadRequest:
		return invalidErr("device rejected setpoint command")
	default:
		return transientErr(fmt.Sprintf("command returned %d", resp.StatusCode), nil)
	}
}

func fahrenheitToCelsius(f float64) float64 {
	return (f - 32) * 5 / 9
}
