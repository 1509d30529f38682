package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"
)

const cieloBaseURL = "https://api.cielowigle.com/v1"

// cieloAdapter drives a Cielo-controlled mini split through the Cielo cloud API.
type cieloAdapter struct {
	client   *http.Client
	baseURL  string
	deviceID string
	token    string
}

func newCieloAdapter(deviceID, token string) *cieloAdapter {
	return &cieloAdapter{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  cieloBaseURL,
		deviceID: deviceID,
		token:    token,
	}
}

func (a *cieloAdapter) IsOnline(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/devices/%s", a.baseURL, a.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, transientErr("decode device", err)
	}
	return body.Online, nil
}

func (a *cieloAdapter) SetTemperature(ctx context.Context, value float64, mode Mode) error {
	// Cielo units accept half degree setpoints between 40 and 95.
	if value < 40 || value > 95 {
		return invalidErr(fmt.Sprintf("setpoint %.1f outside supported range 40-95", value))
	}
	rounded := math.Round(value*2) / 2

	payload, err := json.Marshal(map[string]any{
		"temperature": rounded,
		"mode":        string(mode),
	})
	if err != nil {
		return transientErr("marshal command", err)
	}

	url := fmt.Sprintf("%s/devices/%s/temperature", a.baseURL, a.deviceID)
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
	case resp.StatusCode == http.StatusUnprocessableEntity, resp.StatusCode == http.StatusBadRequest:
		return invalidErr("device rejected setpoint command")
	default:
		return transientErr(fmt.Sprintf("command returned %d", resp.StatusCode), nil)
	}
}
