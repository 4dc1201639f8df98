package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB

	// localLocks backs AcquireLock on dialects without advisory locks.
	// lockConns pins the session holding each Postgres advisory lock;
	// pg_advisory_unlock only works on the connection that acquired it.
	localMu    sync.Mutex
	localLocks map[int64]bool
	lockConns  map[int64]*sql.Conn
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var gormDialector gorm.Dialector
	if driver == "postgres" || driver == "postgrespool" {
		gormDialector = postgres.Open(dsn)
	} else if driver == "sqlite" {
		gormDialector = sqlite.Open(dsn)
	} else {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(gormDialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	return &GormStorage{
		db:         db,
		localLocks: make(map[int64]bool),
		lockConns:  make(map[int64]*sql.Conn),
	}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.AutoMigrate(
		&Customer{},
		&Admin{},
		&City{},
		&Tank{},
		&MainTank{},
		&Bill{},
		&Notification{},
		&Token{},
		&CasbinRule{},
		&Setting{},
		&ScheduledJob{},
	)
}

// Customers

func (s *GormStorage) CreateCustomer(ctx context.Context, c Customer) error {
	return s.db.WithContext(ctx).Create(&c).Error
}

func (s *GormStorage) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	var c Customer
	return first(s.db.WithContext(ctx).First(&c, "id = ?", id), &c)
}

func (s *GormStorage) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	var c Customer
	return first(s.db.WithContext(ctx).First(&c, "email = ?", email), &c)
}

func (s *GormStorage) FindCustomerByAny(ctx context.Context, identityNumber, email, phone string) (*Customer, error) {
	var c Customer
	return first(s.db.WithContext(ctx).
		Where("identity_number = ? OR email = ? OR phone = ?", identityNumber, email, phone).
		First(&c), &c)
}

func (s *GormStorage) ListCustomers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	result := s.db.WithContext(ctx).Order("name").Find(&out)
	return out, result.Error
}

func (s *GormStorage) SearchCustomers(ctx context.Context, q string) ([]Customer, error) {
	var out []Customer
	like := "%" + strings.TrimSpace(q) + "%"
	result := s.db.WithContext(ctx).
		Where("name LIKE ? OR email LIKE ? OR identity_number LIKE ?", like, like, like).
		Order("name").
		Find(&out)
	return out, result.Error
}

func (s *GormStorage) UpdateCustomer(ctx context.Context, c Customer) error {
	return s.db.WithContext(ctx).Save(&c).Error
}

// Admins

func (s *GormStorage) CreateAdmin(ctx context.Context, a Admin) error {
	return s.db.WithContext(ctx).Create(&a).Error
}

func (s *GormStorage) GetAdmin(ctx context.Context, id string) (*Admin, error) {
	var a Admin
	return first(s.db.WithContext(ctx).First(&a, "id = ?", id), &a)
}

func (s *GormStorage) GetAdminByEmail(ctx context.Context, email string) (*Admin, error) {
	var a Admin
	return first(s.db.WithContext(ctx).First(&a, "email = ?", email), &a)
}

func (s *GormStorage) ListAdmins(ctx context.Context) ([]Admin, error) {
	var out []Admin
	result := s.db.WithContext(ctx).Order("name").Find(&out)
	return out, result.Error
}

// Cities

func (s *GormStorage) CreateCity(ctx context.Context, c City) error {
	return s.db.WithContext(ctx).Create(&c).Error
}

func (s *GormStorage) GetCity(ctx context.Context, id string) (*City, error) {
	var c City
	return first(s.db.WithContext(ctx).First(&c, "id = ?", id), &c)
}

func (s *GormStorage) GetCityByName(ctx context.Context, name string) (*City, error) {
	var c City
	return first(s.db.WithContext(ctx).First(&c, "name = ?", name), &c)
}

func (s *GormStorage) ListCities(ctx context.Context) ([]City, error) {
	var out []City
	result := s.db.WithContext(ctx).Order("name").Find(&out)
	return out, result.Error
}

// Tanks

func (s *GormStorage) CreateTank(ctx context.Context, t Tank) error {
	return s.db.WithContext(ctx).Create(&t).Error
}

func (s *GormStorage) GetTank(ctx context.Context, id string) (*Tank, error) {
	var t Tank
	return first(s.db.WithContext(ctx).First(&t, "id = ?", id), &t)
}

func (s *GormStorage) ListTanks(ctx context.Context) ([]Tank, error) {
	var out []Tank
	result := s.db.WithContext(ctx).Find(&out)
	return out, result.Error
}

func (s *GormStorage) ListTanksByCustomer(ctx context.Context, customerID string) ([]Tank, error) {
	var out []Tank
	result := s.db.WithContext(ctx).Find(&out, "customer_id = ?", customerID)
	return out, result.Error
}

func (s *GormStorage) SaveTank(ctx context.Context, t Tank) error {
	return s.db.WithContext(ctx).Save(&t).Error
}

// Main tank

func (s *GormStorage) GetMainTank(ctx context.Context) (*MainTank, error) {
	var mt MainTank
	return first(s.db.WithContext(ctx).Order("created_at").First(&mt), &mt)
}

func (s *GormStorage) SaveMainTank(ctx context.Context, mt MainTank) error {
	return s.db.WithContext(ctx).Save(&mt).Error
}

// Bills

func (s *GormStorage) CreateBill(ctx context.Context, b Bill) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Bill{}).
			Where("tank_id = ? AND year = ? AND month = ?", b.TankID, b.Year, b.Month).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateBill
		}
		if err := tx.Create(&b).Error; err != nil {
			// The unique index is the backstop for concurrent reconcilers.
			if isUniqueViolation(err) {
				return ErrDuplicateBill
			}
			return err
		}
		return nil
	})
}

func (s *GormStorage) GetBill(ctx context.Context, id string) (*Bill, error) {
	var b Bill
	return first(s.db.WithContext(ctx).First(&b, "id = ?", id), &b)
}

func (s *GormStorage) ListBills(ctx context.Context) ([]Bill, error) {
	var out []Bill
	result := s.db.WithContext(ctx).Order("created_at desc").Find(&out)
	return out, result.Error
}

func (s *GormStorage) ListBillsByCustomer(ctx context.Context, customerID string) ([]Bill, error) {
	var out []Bill
	result := s.db.WithContext(ctx).Order("created_at desc").Find(&out, "customer_id = ?", customerID)
	return out, result.Error
}

func (s *GormStorage) CountUnpaidBills(ctx context.Context, tankID string) (int, error) {
	var count int64
	result := s.db.WithContext(ctx).Model(&Bill{}).
		Where("tank_id = ? AND status = ?", tankID, BillUnpaid).
		Count(&count)
	return int(count), result.Error
}

func (s *GormStorage) MarkBillPaid(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&Bill{}).Where("id = ?", id).
		Updates(map[string]any{"status": BillPaid, "updated_at": time.Now()}).Error
}

// Notifications

func (s *GormStorage) CreateNotification(ctx context.Context, n Notification) error {
	return s.db.WithContext(ctx).Create(&n).Error
}

func (s *GormStorage) ListNotifications(ctx context.Context, userID string, now time.Time) ([]Notification, error) {
	var out []Notification
	cutoff := now.Add(-NotificationTTL)
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND created_at > ?", userID, cutoff).
		Order("created_at desc").
		Find(&out)
	return out, result.Error
}

func (s *GormStorage) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-NotificationTTL)
	result := s.db.WithContext(ctx).Where("created_at <= ?", cutoff).Delete(&Notification{})
	return result.RowsAffected, result.Error
}

// Tokens

func (s *GormStorage) CreateToken(ctx context.Context, t Token) error {
	return s.db.WithContext(ctx).Create(&t).Error
}

func (s *GormStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	var t Token
	return first(s.db.WithContext(ctx).First(&t, "token_hash = ?", hash), &t)
}

func (s *GormStorage) DeleteToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Token{}, "id = ?", id).Error
}

func (s *GormStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&Token{}).Where("id = ?", id).Update("last_used_at", now).Error
}

// Casbin rules

func (s *GormStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	var rules []CasbinRule
	result := s.db.WithContext(ctx).Find(&rules)
	return rules, result.Error
}

func (s *GormStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Create(&rule).Error
}

func (s *GormStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Where(&rule).Delete(&CasbinRule{}).Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&setting).Error
}

// Scheduled jobs

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	status := 0
	if success {
		status = 1
	}
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

// Locks

func (s *GormStorage) AcquireLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		sqlDB, err := s.db.DB()
		if err != nil {
			return false, err
		}
		conn, err := sqlDB.Conn(ctx)
		if err != nil {
			return false, err
		}
		var ok bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
			_ = conn.Close()
			return false, err
		}
		if !ok {
			_ = conn.Close()
			return false, nil
		}
		s.localMu.Lock()
		s.lockConns[key] = conn
		s.localMu.Unlock()
		return true, nil
	}
	s.localMu.Lock()
	defer s.localMu.Unlock()
	if s.localLocks[key] {
		return false, nil
	}
	s.localLocks[key] = true
	return true, nil
}

func (s *GormStorage) ReleaseLock(ctx context.Context, key int64) (bool, error) {
	if s.db.Dialector.Name() == "postgres" {
		s.localMu.Lock()
		conn := s.lockConns[key]
		delete(s.lockConns, key)
		s.localMu.Unlock()
		if conn == nil {
			return false, nil
		}
		var ok bool
		err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
		if cerr := conn.Close(); err == nil {
			err = cerr
		}
		return ok, err
	}
	s.localMu.Lock()
	defer s.localMu.Unlock()
	held := s.localLocks[key]
	delete(s.localLocks, key)
	return held, nil
}

// Close & Ping

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// first maps gorm's not-found to (nil, nil), consistent across backends.
func first[T any](result *gorm.DB, v *T) (*T, error) {
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return v, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
