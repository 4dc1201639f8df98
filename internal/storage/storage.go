package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateBill is returned by CreateBill when a bill already exists for
// the same (tank, year, month).
var ErrDuplicateBill = errors.New("bill already exists for this tank and period")

// Storage abstracts persistence for the back office. All reads that can miss
// return (nil, nil) rather than an error, consistent across backends.
type Storage interface {
	// Customers
	CreateCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	GetCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	FindCustomerByAny(ctx context.Context, identityNumber, email, phone string) (*Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
	SearchCustomers(ctx context.Context, q string) ([]Customer, error)
	UpdateCustomer(ctx context.Context, c Customer) error

	// Admins
	CreateAdmin(ctx context.Context, a Admin) error
	GetAdmin(ctx context.Context, id string) (*Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*Admin, error)
	ListAdmins(ctx context.Context) ([]Admin, error)

	// Cities
	CreateCity(ctx context.Context, c City) error
	GetCity(ctx context.Context, id string) (*City, error)
	GetCityByName(ctx context.Context, name string) (*City, error)
	ListCities(ctx context.Context) ([]City, error)

	// Tanks
	CreateTank(ctx context.Context, t Tank) error
	GetTank(ctx context.Context, id string) (*Tank, error)
	ListTanks(ctx context.Context) ([]Tank, error)
	ListTanksByCustomer(ctx context.Context, customerID string) ([]Tank, error)
	SaveTank(ctx context.Context, t Tank) error

	// Main tank (shared reservoir)
	GetMainTank(ctx context.Context) (*MainTank, error)
	SaveMainTank(ctx context.Context, mt MainTank) error

	// Bills
	CreateBill(ctx context.Context, b Bill) error
	GetBill(ctx context.Context, id string) (*Bill, error)
	ListBills(ctx context.Context) ([]Bill, error)
	ListBillsByCustomer(ctx context.Context, customerID string) ([]Bill, error)
	CountUnpaidBills(ctx context.Context, tankID string) (int, error)
	MarkBillPaid(ctx context.Context, id string) error

	// Notifications
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, userID string, now time.Time) ([]Notification, error)
	PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error)

	// Tokens
	CreateToken(ctx context.Context, t Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string) error

	// Casbin rules
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Scheduled jobs
	UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error

	// Locks serialize pump and billing cycles. On Postgres these are advisory
	// locks; the sqlite and memory backends fall back to process-local locks,
	// which is correct for single-instance deployments.
	AcquireLock(ctx context.Context, key int64) (bool, error)
	ReleaseLock(ctx context.Context, key int64) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}
