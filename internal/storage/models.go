package storage

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nwehbe/waterops/internal/ledger"
)

// Gender of a registered family member.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// BillStatus is the payment state of a bill.
type BillStatus string

const (
	BillUnpaid BillStatus = "Unpaid"
	BillPaid   BillStatus = "Paid"
)

// Customer is a household account that owns tanks and receives bills.
type Customer struct {
	ID             string    `json:"id" gorm:"primaryKey;column:id"`
	IdentityNumber string    `json:"identity_number" gorm:"unique;column:identity_number"`
	Name           string    `json:"name" gorm:"column:name"`
	Email          string    `json:"email" gorm:"unique;column:email"`
	Phone          string    `json:"phone" gorm:"unique;column:phone"`
	PasswordHash   string    `json:"-" gorm:"column:password_hash"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt      time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// Admin is a back-office operator.
type Admin struct {
	ID           string    `json:"id" gorm:"primaryKey;column:id"`
	Name         string    `json:"name" gorm:"column:name"`
	Email        string    `json:"email" gorm:"unique;column:email"`
	Phone        string    `json:"phone" gorm:"column:phone"`
	PasswordHash string    `json:"-" gorm:"column:password_hash"`
	Role         string    `json:"role" gorm:"column:role"` // "admin" or "manager"
	CreatedAt    time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// City groups tanks by service area.
type City struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	Name      string    `json:"name" gorm:"unique;column:name"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// FamilyMember is one registered resident of a household tank.
type FamilyMember struct {
	Name       string    `json:"name"`
	DOB        time.Time `json:"dob"`
	IdentityID string    `json:"identity_id"`
	Gender     Gender    `json:"gender"`
}

// FamilyMembers is stored as a JSON column.
type FamilyMembers []FamilyMember

func (m FamilyMembers) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *FamilyMembers) Scan(src any) error {
	return scanJSON(src, m)
}

// Coordinates locates a tank.
type Coordinates struct {
	Latitude  float64 `json:"latitude" gorm:"column:latitude"`
	Longitude float64 `json:"longitude" gorm:"column:longitude"`
}

// TankHardware holds the controller pin assignments for a household tank.
type TankHardware struct {
	WaterflowSensor int `json:"waterflow_sensor" gorm:"column:waterflow_sensor"`
	SolenoidValve   int `json:"solenoid_valve" gorm:"column:solenoid_valve"`
}

// UsageLedger wraps ledger.Ledger so gorm stores it as a JSON column in the
// legacy layout (month number plus a days object keyed "1".."31").
type UsageLedger struct {
	ledger.Ledger
}

func (u UsageLedger) Value() (driver.Value, error) {
	return json.Marshal(u.Ledger)
}

func (u *UsageLedger) Scan(src any) error {
	return scanJSON(src, &u.Ledger)
}

func (u UsageLedger) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Ledger)
}

func (u *UsageLedger) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &u.Ledger)
}

// Tank is one household's cistern.
type Tank struct {
	ID            string        `json:"id" gorm:"primaryKey;column:id"`
	CustomerID    string        `json:"customer_id" gorm:"index;column:customer_id"`
	CityID        string        `json:"city_id" gorm:"index;column:city_id"`
	Radius        float64       `json:"radius" gorm:"column:radius"`
	Height        float64       `json:"height" gorm:"column:height"`
	CurrentLevel  float64       `json:"current_level" gorm:"column:current_level"`
	FamilyMembers FamilyMembers `json:"family_members" gorm:"type:text;column:family_members"`
	Coordinates   Coordinates   `json:"coordinates" gorm:"embedded"`
	Hardware      TankHardware  `json:"hardware" gorm:"embedded"`
	Usage         UsageLedger   `json:"amount_per_month" gorm:"type:text;column:amount_per_month"`
	CreatedAt     time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"column:updated_at"`
}

// MainTankHardware holds the reservoir's sensor and pump pin assignments.
type MainTankHardware struct {
	UltrasonicTrig int `json:"ultrasonic_sensor_trig" gorm:"column:ultrasonic_sensor_trig"`
	UltrasonicEcho int `json:"ultrasonic_sensor_echo" gorm:"column:ultrasonic_sensor_echo"`
	WaterPump      int `json:"water_pump" gorm:"column:water_pump"`
}

// MainTank is the shared reservoir feeding all household tanks. There is one
// row in practice; the dispatcher always loads the first.
type MainTank struct {
	ID                  string           `json:"id" gorm:"primaryKey;column:id"`
	Radius              float64          `json:"radius" gorm:"column:radius"`
	Height              float64          `json:"height" gorm:"column:height"`
	CurrentLevel        float64          `json:"current_level" gorm:"column:current_level"`
	Hardware            MainTankHardware `json:"hardware" gorm:"embedded"`
	PumpDurationSeconds int              `json:"water_pump_duration" gorm:"column:pump_duration_seconds"`
	CreatedAt           time.Time        `json:"created_at" gorm:"column:created_at"`
	UpdatedAt           time.Time        `json:"updated_at" gorm:"column:updated_at"`
}

// Bill is a finalized monthly charge. At most one bill exists per
// (tank, year, month); the unique index backs the reconciler's idempotency.
type Bill struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	CustomerID string     `json:"customer_id" gorm:"index;column:customer_id"`
	TankID     string     `json:"tank_id" gorm:"uniqueIndex:idx_bill_tank_period;column:tank_id"`
	Amount     float64    `json:"amount" gorm:"column:amount"`
	Status     BillStatus `json:"status" gorm:"column:status"`
	Year       int        `json:"year" gorm:"uniqueIndex:idx_bill_tank_period;column:year"`
	Month      int        `json:"month" gorm:"uniqueIndex:idx_bill_tank_period;column:month"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt  time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

// Notification is an ephemeral per-user message. Rows older than the
// retention window are invisible to reads and purged by the worker.
type Notification struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	UserID    string    `json:"user_id" gorm:"index;column:user_id"`
	Message   string    `json:"message" gorm:"column:message"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
}

// NotificationTTL is how long a notification stays visible.
const NotificationTTL = 24 * time.Hour

// Token is an opaque API access token issued at login.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	UserID     string     `json:"user_id" gorm:"column:user_id"`
	Kind       string     `json:"kind" gorm:"column:kind"` // "admin" or "customer"
	TokenHash  string     `json:"-" gorm:"column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// CasbinRule is a persisted RBAC policy rule.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// Setting is a runtime-tunable key/value pair (e.g. the billing interval).
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the last outcome of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

func scanJSON(src, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("storage: cannot scan %T into JSON column", src)
	}
}
