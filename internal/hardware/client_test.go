package hardware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nwehbe/waterops/internal/storage"
)

func TestControlPump(t *testing.T) {
	var gotPath string
	var gotReq PumpRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(PumpResponse{
			Status: "ok",
			Tanks:  []PumpResult{{TankID: "t1", Liters: 42, FinalLiters: 900}},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	resp, err := c.ControlPump(context.Background(), PumpRequest{
		MainTank: PumpMainTank{WaterPumpDuration: 60},
		Tanks:    []PumpTank{{ID: "t1", Target: 1000, Hardware: storage.TankHardware{SolenoidValve: 4}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotPath != "/control_water_pump" {
		t.Errorf("path = %s", gotPath)
	}
	if gotReq.MainTank.WaterPumpDuration != 60 || len(gotReq.Tanks) != 1 || gotReq.Tanks[0].Target != 1000 {
		t.Errorf("request = %+v", gotReq)
	}
	if len(resp.Tanks) != 1 || resp.Tanks[0].Liters != 42 {
		t.Errorf("response = %+v", resp)
	}
}

func TestEstimateVolume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/estimate_volume" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]float64{"estimated_volume_liters": 1234.5})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	got, err := c.EstimateVolume(context.Background(), VolumeRequest{Radius: 100, Height: 100})
	if err != nil {
		t.Fatal(err)
	}
	if got != 1234.5 {
		t.Errorf("volume = %v, want 1234.5", got)
	}
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "pump jammed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second)
	if _, err := c.ControlPump(context.Background(), PumpRequest{}); err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestContextCancellation(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := NewHTTPClient(srv.URL, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.ControlPump(ctx, PumpRequest{}); err == nil {
		t.Fatal("expected error when context expires")
	}
}
