// Package hardware talks to the remote pump controller over HTTP. The
// controller drives the physical pump and valves and reports flow-sensor and
// ultrasonic readings; this package treats it as an opaque service.
package hardware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nwehbe/waterops/internal/storage"
)

// Client is the boundary to the pump controller.
type Client interface {
	ControlPump(ctx context.Context, req PumpRequest) (*PumpResponse, error)
	EstimateVolume(ctx context.Context, req VolumeRequest) (float64, error)
}

// PumpTank describes one tank the controller should fill.
type PumpTank struct {
	ID       string               `json:"id"`
	Hardware storage.TankHardware `json:"hardware"`
	// Target is the tank's remaining monthly allowance in liters; the
	// controller may stop early when it is reached.
	Target float64 `json:"target"`
}

// PumpMainTank carries the reservoir's pump descriptor.
type PumpMainTank struct {
	Hardware          storage.MainTankHardware `json:"hardware"`
	WaterPumpDuration int                      `json:"water_pump_duration"`
}

type PumpRequest struct {
	MainTank PumpMainTank `json:"main_tank"`
	Tanks    []PumpTank   `json:"tanks"`
}

// PumpResult is the per-tank outcome of a pump command.
type PumpResult struct {
	TankID string `json:"tank_id"`
	// Liters delivered this cycle.
	Liters float64 `json:"liters"`
	// FinalLiters is the tank's new level as measured by the controller.
	FinalLiters float64 `json:"final_liters"`
}

type PumpResponse struct {
	Message string       `json:"message"`
	Status  string       `json:"status"`
	Tanks   []PumpResult `json:"tanks"`
}

type VolumeRequest struct {
	Radius   float64                  `json:"radius"`
	Height   float64                  `json:"height"`
	Hardware storage.MainTankHardware `json:"hardware"`
}

type volumeResponse struct {
	EstimatedVolumeLiters float64 `json:"estimated_volume_liters"`
}

// HTTPClient is the production Client.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ControlPump(ctx context.Context, req PumpRequest) (*PumpResponse, error) {
	var resp PumpResponse
	if err := c.post(ctx, "/control_water_pump", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) EstimateVolume(ctx context.Context, req VolumeRequest) (float64, error) {
	var resp volumeResponse
	if err := c.post(ctx, "/estimate_volume", req, &resp); err != nil {
		return 0, err
	}
	return resp.EstimatedVolumeLiters, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("hardware: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("hardware: %s returned %d: %s", path, resp.StatusCode, string(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
