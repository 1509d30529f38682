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

const pioneerBaseURL = "https://api.pioneerminisplit.com/v1"

// pioneerAdapter drives a Pioneer mini split. The vendor API only accepts
// whole degree setpoints, so values are rounded before sending.
type pioneerAdapter struct {
	client   *http.Client
	baseURL  string
	deviceID string
	apiKey   string
	token    string
}

func newPioneerAdapter(deviceID, apiKey, token string) *pioneerAdapter {
	return &pioneerAdapter{
		client:   &http.Client{Timeout: 15 * time.Second},
		baseURL:  pioneerBaseURL,
		deviceID: deviceID,
		apiKey:   apiKey,
		token:    token,
	}
}

func (a *pioneerAdapter) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.token)
	req.Header.Set("X-API-Key", a.apiKey)
}

func (a *pioneerAdapter) IsOnline(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/devices/%s", a.baseURL, a.deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, transientErr("build device request", err)
	}
	a.setHeaders(req)

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

func (a *pioneerAdapter) SetTemperature(ctx context.Context, value float64, mode Mode) error {
	if value < 54 || value > 88 {
		return invalidErr(fmt.Sprintf("setpoint %.1f outside supported range 54-88", value))
	}

	payload, err := json.Marshal(map[string]any{
		"temperature": math.Round(value),
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
	a.setHeaders(req)
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
