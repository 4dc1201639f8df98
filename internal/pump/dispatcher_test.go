package pump

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nwehbe/waterops/internal/hardware"
	"github.com/nwehbe/waterops/internal/ledger"
	"github.com/nwehbe/waterops/internal/storage"
)

type fakeHardware struct {
	pumpResp *hardware.PumpResponse
	pumpErr  error
	volume   float64
	volErr   error

	lastPumpReq *hardware.PumpRequest
	pumpCalls   int
}

func (f *fakeHardware) ControlPump(ctx context.Context, req hardware.PumpRequest) (*hardware.PumpResponse, error) {
	f.pumpCalls++
	f.lastPumpReq = &req
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

var testNow = time.Date(2026, time.August, 28, 10, 0, 0, 0, time.UTC)

func fullReservoir() storage.MainTank {
	return storage.MainTank{
		ID:                  "main",
		Radius:              fiveLiterRadius,
		Height:              fiveLiterHeight,
		CurrentLevel:        4.5,
		PumpDurationSeconds: 60,
	}
}

// adultTank is mostly empty with one adult male resident: allowance 4200.
func adultTank(id, customerID string) storage.Tank {
	return storage.Tank{
		ID:         id,
		CustomerID: customerID,
		Radius:     fiveLiterRadius,
		Height:     fiveLiterHeight,
		FamilyMembers: storage.FamilyMembers{{
			Name:   "resident",
			DOB:    testNow.AddDate(-40, 0, -1),
			Gender: storage.GenderMale,
		}},
		Usage: storage.UsageLedger{Ledger: ledger.New(testNow.Year(), testNow.Month())},
	}
}

func newTestDispatcher(st storage.Storage, hw hardware.Client, n Notifier) *Dispatcher {
	d := NewDispatcher(st, hw, n)
	d.now = func() time.Time { return testNow }
	return d
}

func TestRunCycleHappyPath(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())

	eligible := adultTank("t-eligible", "cust-a")
	full := adultTank("t-full", "cust-b")
	full.CurrentLevel = 5 // at capacity
	_ = st.CreateTank(ctx, eligible)
	_ = st.CreateTank(ctx, full)

	hw := &fakeHardware{
		pumpResp: &hardware.PumpResponse{
			Status: "ok",
			Tanks: []hardware.PumpResult{
				{TankID: "t-eligible", Liters: 120, FinalLiters: 3.2},
			},
		},
		volume: 3.9,
	}
	n := &recordingNotifier{}
	d := newTestDispatcher(st, hw, n)

	summary, err := d.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if summary.TanksPumped != 1 || summary.TanksBlocked != 1 {
		t.Errorf("summary = %d pumped / %d blocked, want 1 / 1", summary.TanksPumped, summary.TanksBlocked)
	}
	if summary.ReservoirLevel != 3.9 {
		t.Errorf("reservoir level = %v, want 3.9", summary.ReservoirLevel)
	}

	// The pump command carries only the eligible tank, with the remaining
	// monthly allowance as target.
	if len(hw.lastPumpReq.Tanks) != 1 || hw.lastPumpReq.Tanks[0].ID != "t-eligible" {
		t.Fatalf("pump request tanks = %+v, want only t-eligible", hw.lastPumpReq.Tanks)
	}
	if got := hw.lastPumpReq.Tanks[0].Target; got != 4200 {
		t.Errorf("pump target = %v, want 4200", got)
	}
	if hw.lastPumpReq.MainTank.WaterPumpDuration != 60 {
		t.Errorf("pump duration = %d, want 60", hw.lastPumpReq.MainTank.WaterPumpDuration)
	}

	// The pumped tank's ledger and level were updated.
	updated, _ := st.GetTank(ctx, "t-eligible")
	if updated.CurrentLevel != 3.2 {
		t.Errorf("tank level = %v, want 3.2", updated.CurrentLevel)
	}
	if got := updated.Usage.Total(); got != 120 {
		t.Errorf("ledger total = %v, want 120", got)
	}
	if got := updated.Usage.Days[testNow.Day()-1]; got != 120 {
		t.Errorf("today's ledger slot = %v, want 120", got)
	}

	// The reservoir's fresh reading was persisted.
	mt, _ := st.GetMainTank(ctx)
	if mt.CurrentLevel != 3.9 {
		t.Errorf("persisted reservoir level = %v, want 3.9", mt.CurrentLevel)
	}

	// The blocked owner got exactly one notification.
	if len(n.users) != 1 || n.users[0] != "cust-b" {
		t.Errorf("notifications = %v, want one for cust-b", n.users)
	}

	// The lock was released: a second cycle must be able to start.
	if _, err := d.RunCycle(ctx); errors.Is(err, ErrCycleInProgress) {
		t.Error("lock not released after cycle")
	}
}

func TestRunCycleNoReservoir(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.CreateTank(ctx, adultTank("t1", "c1"))

	d := newTestDispatcher(st, &fakeHardware{}, &recordingNotifier{})
	if _, err := d.RunCycle(ctx); !errors.Is(err, ErrNoReservoir) {
		t.Errorf("err = %v, want ErrNoReservoir", err)
	}
}

func TestRunCycleReservoirEmptyAbortsBeforeTanks(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	low := fullReservoir()
	low.CurrentLevel = 1 // 20%
	_ = st.SaveMainTank(ctx, low)
	_ = st.CreateTank(ctx, adultTank("t1", "c1"))

	hw := &fakeHardware{}
	n := &recordingNotifier{}
	d := newTestDispatcher(st, hw, n)

	if _, err := d.RunCycle(ctx); !errors.Is(err, ErrReservoirEmpty) {
		t.Fatalf("err = %v, want ErrReservoirEmpty", err)
	}
	if hw.pumpCalls != 0 {
		t.Error("hardware must not be called when the reservoir is empty")
	}
	if len(n.messages) != 0 {
		t.Error("no tank should be evaluated when the reservoir is empty")
	}
}

func TestRunCycleNoTanks(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())

	d := newTestDispatcher(st, &fakeHardware{}, &recordingNotifier{})
	if _, err := d.RunCycle(ctx); !errors.Is(err, ErrNoTanks) {
		t.Errorf("err = %v, want ErrNoTanks", err)
	}
}

func TestRunCycleNoEligibleTanks(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())

	full := adultTank("t1", "c1")
	full.CurrentLevel = 5
	_ = st.CreateTank(ctx, full)

	hw := &fakeHardware{}
	n := &recordingNotifier{}
	d := newTestDispatcher(st, hw, n)

	if _, err := d.RunCycle(ctx); !errors.Is(err, ErrNoEligibleTanks) {
		t.Fatalf("err = %v, want ErrNoEligibleTanks", err)
	}
	if hw.pumpCalls != 0 {
		t.Error("hardware must not be called with an empty eligible set")
	}
	// The blocked owner was still notified.
	if len(n.users) != 1 {
		t.Errorf("notifications = %d, want 1", len(n.users))
	}
}

func TestRunCycleConflictWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())
	_ = st.CreateTank(ctx, adultTank("t1", "c1"))

	if ok, _ := st.AcquireLock(ctx, reservoirLockKey); !ok {
		t.Fatal("could not pre-acquire lock")
	}
	d := newTestDispatcher(st, &fakeHardware{}, &recordingNotifier{})
	if _, err := d.RunCycle(ctx); !errors.Is(err, ErrCycleInProgress) {
		t.Errorf("err = %v, want ErrCycleInProgress", err)
	}
}

func TestRunCycleHardwareFailure(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())
	_ = st.CreateTank(ctx, adultTank("t1", "c1"))

	hw := &fakeHardware{pumpErr: errors.New("controller unreachable")}
	d := newTestDispatcher(st, hw, &recordingNotifier{})

	_, err := d.RunCycle(ctx)
	if err == nil {
		t.Fatal("expected error from hardware failure")
	}
	if errors.Is(err, ErrReservoirEmpty) || errors.Is(err, ErrNoEligibleTanks) {
		t.Errorf("hardware failure mapped to a business sentinel: %v", err)
	}

	// Lock released despite the failure.
	if ok, _ := st.AcquireLock(ctx, reservoirLockKey); !ok {
		t.Error("lock still held after failed cycle")
	}
}

func TestRunCycleBillsStaleLedgerBeforeReset(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.SaveMainTank(ctx, fullReservoir())

	stale := adultTank("t1", "c1")
	july := ledger.New(2026, time.July)
	_ = july.Add(10, 999)
	stale.Usage = storage.UsageLedger{Ledger: july}
	_ = st.CreateTank(ctx, stale)

	hw := &fakeHardware{
		pumpResp: &hardware.PumpResponse{
			Status: "ok",
			Tanks:  []hardware.PumpResult{{TankID: "t1", Liters: 50, FinalLiters: 2}},
		},
		volume: 4,
	}
	n := &recordingNotifier{}
	d := newTestDispatcher(st, hw, n)

	if _, err := d.RunCycle(ctx); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	// The July usage was billed, not overwritten.
	bills, _ := st.ListBills(ctx)
	if len(bills) != 1 {
		t.Fatalf("bills = %d, want 1", len(bills))
	}
	b := bills[0]
	if b.TankID != "t1" || b.Year != 2026 || b.Month != int(time.July) || b.Amount != 999 {
		t.Errorf("bill = %+v, want 999 liters for July 2026 on t1", b)
	}
	if len(n.users) != 1 || n.users[0] != "c1" {
		t.Errorf("notifications = %v, want one bill notice for c1", n.users)
	}

	// The fresh ledger carries only this cycle's delivery.
	updated, _ := st.GetTank(ctx, "t1")
	if updated.Usage.Month != time.August {
		t.Errorf("ledger month = %v, want August", updated.Usage.Month)
	}
	if got := updated.Usage.Total(); got != 50 {
		t.Errorf("ledger total after reset = %v, want 50", got)
	}
}
