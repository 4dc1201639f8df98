package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/ledger"
	"github.com/nwehbe/waterops/internal/notify"
	"github.com/nwehbe/waterops/internal/pump"
	"github.com/nwehbe/waterops/internal/storage"
)

type fakeHardware struct {
	pumpResp *hardware.PumpResponse
	pumpErr  error
	volume   float64
	volErr   error
}

func (f *fakeHardware) ControlPump(ctx context.Context, req hardware.PumpRequest) (*hardware.PumpResponse, error) {
	if f.pumpErr != nil {
		return nil, f.pumpErr
	}
	return f.pumpResp, nil
}

func (f *fakeHardware) EstimateVolume(ctx context.Context, req hardware.VolumeRequest) (float64, error) {
	if f.volErr != nil {
		return 0, f.volErr
	}
	return f.volume, nil
}

// newTestServer wires a server with auth disabled against in-memory storage.
func newTestServer(st storage.Storage, hw hardware.Client) *Server {
	hub := notify.NewHub()
	notifySvc := notify.NewService(st, hub)
	dispatcher := pump.NewDispatcher(st, hw, notifySvc)
	return NewServer(st, nil, false, notifySvc, dispatcher, hw, nil)
}

func seedPumpableWorld(t *testing.T, st storage.Storage) {
	t.Helper()
	ctx := context.Background()
	if err := st.SaveMainTank(ctx, storage.MainTank{
		ID:                  "main",
		Radius:              100,
		Height:              100,
		CurrentLevel:        3000,
		PumpDurationSeconds: 60,
	}); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if err := st.CreateTank(ctx, storage.Tank{
		ID:         "t1",
		CustomerID: "c1",
		Radius:     100,
		Height:     100,
		FamilyMembers: storage.FamilyMembers{{
			Name:   "resident",
			DOB:    now.AddDate(-30, 0, 0),
			Gender: storage.GenderMale,
		}},
		Usage: storage.UsageLedger{Ledger: ledger.New(now.Year(), now.Month())},
	}); err != nil {
		t.Fatal(err)
	}
}

func TestPumpWaterOK(t *testing.T) {
	st := storage.NewMemory()
	seedPumpableWorld(t, st)
	hw := &fakeHardware{
		pumpResp: &hardware.PumpResponse{
			Status: "ok",
			Tanks:  []hardware.PumpResult{{TankID: "t1", Liters: 100, FinalLiters: 500}},
		},
		volume: 2800,
	}
	mux := newTestServer(st, hw).NewMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pump-water", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary pump.CycleSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.TanksPumped != 1 {
		t.Errorf("tanks pumped = %d, want 1", summary.TanksPumped)
	}
	if summary.ReservoirLevel != 2800 {
		t.Errorf("reservoir level = %v, want 2800", summary.ReservoirLevel)
	}
}

func TestPumpWaterStatusMapping(t *testing.T) {
	t.Run("no reservoir is 404", func(t *testing.T) {
		st := storage.NewMemory()
		mux := newTestServer(st, &fakeHardware{}).NewMux()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pump-water", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("empty reservoir is 400", func(t *testing.T) {
		st := storage.NewMemory()
		seedPumpableWorld(t, st)
		low, _ := st.GetMainTank(context.Background())
		low.CurrentLevel = 100 // ~3%
		_ = st.SaveMainTank(context.Background(), *low)

		mux := newTestServer(st, &fakeHardware{}).NewMux()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pump-water", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("held lock is 409", func(t *testing.T) {
		st := storage.NewMemory()
		seedPumpableWorld(t, st)
		// Same key the dispatcher uses.
		if ok, _ := st.AcquireLock(context.Background(), 7301); !ok {
			t.Fatal("could not pre-acquire lock")
		}

		mux := newTestServer(st, &fakeHardware{}).NewMux()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pump-water", nil))
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("hardware failure is 502", func(t *testing.T) {
		st := storage.NewMemory()
		seedPumpableWorld(t, st)
		hw := &fakeHardware{pumpErr: errors.New("controller down")}

		mux := newTestServer(st, hw).NewMux()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/pump-water", nil))
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})

	t.Run("GET is 405", func(t *testing.T) {
		st := storage.NewMemory()
		mux := newTestServer(st, &fakeHardware{}).NewMux()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pump-water", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", rec.Code)
		}
	})
}
