package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage used for tests and for running the
// server without a database.
type MemoryStorage struct {
	mu sync.RWMutex

	customers     map[string]Customer
	admins        map[string]Admin
	cities        map[string]City
	tanks         map[string]Tank
	mainTank      *MainTank
	bills         map[string]Bill
	notifications map[string]Notification
	tokens        map[string]Token
	casbinRules   []CasbinRule
	settings      map[string]string
	jobs          map[string]ScheduledJob
	locks         map[int64]bool
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		customers:     make(map[string]Customer),
		admins:        make(map[string]Admin),
		cities:        make(map[string]City),
		tanks:         make(map[string]Tank),
		bills:         make(map[string]Bill),
		notifications: make(map[string]Notification),
		tokens:        make(map[string]Token),
		settings:      make(map[string]string),
		jobs:          make(map[string]ScheduledJob),
		locks:         make(map[int64]bool),
	}
}

// Customers

func (m *MemoryStorage) CreateCustomer(ctx context.Context, c Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
	return nil
}

func (m *MemoryStorage) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.customers[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStorage) GetCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.customers {
		if c.Email == email {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) FindCustomerByAny(ctx context.Context, identityNumber, email, phone string) (*Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.customers {
		if c.IdentityNumber == identityNumber || c.Email == email || c.Phone == phone {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListCustomers(ctx context.Context) ([]Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStorage) SearchCustomers(ctx context.Context, q string) ([]Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(q))
	var out []Customer
	for _, c := range m.customers {
		if strings.Contains(strings.ToLower(c.Name), needle) ||
			strings.Contains(strings.ToLower(c.Email), needle) ||
			strings.Contains(c.IdentityNumber, needle) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStorage) UpdateCustomer(ctx context.Context, c Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
	return nil
}

// Admins

func (m *MemoryStorage) CreateAdmin(ctx context.Context, a Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[a.ID] = a
	return nil
}

func (m *MemoryStorage) GetAdmin(ctx context.Context, id string) (*Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.admins[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *MemoryStorage) GetAdminByEmail(ctx context.Context, email string) (*Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.admins {
		if a.Email == email {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListAdmins(ctx context.Context) ([]Admin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Admin, 0, len(m.admins))
	for _, a := range m.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Cities

func (m *MemoryStorage) CreateCity(ctx context.Context, c City) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cities[c.ID] = c
	return nil
}

func (m *MemoryStorage) GetCity(ctx context.Context, id string) (*City, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.cities[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStorage) GetCityByName(ctx context.Context, name string) (*City, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.cities {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListCities(ctx context.Context) ([]City, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]City, 0, len(m.cities))
	for _, c := range m.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Tanks

func (m *MemoryStorage) CreateTank(ctx context.Context, t Tank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tanks[t.ID] = t
	return nil
}

func (m *MemoryStorage) GetTank(ctx context.Context, id string) (*Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tanks[id]; ok {
		return &t, nil
	}
	return nil, nil
}

func (m *MemoryStorage) ListTanks(ctx context.Context) ([]Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Tank, 0, len(m.tanks))
	for _, t := range m.tanks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) ListTanksByCustomer(ctx context.Context, customerID string) ([]Tank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Tank
	for _, t := range m.tanks {
		if t.CustomerID == customerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStorage) SaveTank(ctx context.Context, t Tank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tanks[t.ID] = t
	return nil
}

// Main tank

func (m *MemoryStorage) GetMainTank(ctx context.Context) (*MainTank, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mainTank == nil {
		return nil, nil
	}
	mt := *m.mainTank
	return &mt, nil
}

func (m *MemoryStorage) SaveMainTank(ctx context.Context, mt MainTank) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mainTank = &mt
	return nil
}

// Bills

func (m *MemoryStorage) CreateBill(ctx context.Context, b Bill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bills {
		if existing.TankID == b.TankID && existing.Year == b.Year && existing.Month == b.Month {
			return ErrDuplicateBill
		}
	}
	m.bills[b.ID] = b
	return nil
}

func (m *MemoryStorage) GetBill(ctx context.Context, id string) (*Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if b, ok := m.bills[id]; ok {
		return &b, nil
	}
	return nil, nil
}

func (m *MemoryStorage) ListBills(ctx context.Context) ([]Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bill, 0, len(m.bills))
	for _, b := range m.bills {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) ListBillsByCustomer(ctx context.Context, customerID string) ([]Bill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Bill
	for _, b := range m.bills {
		if b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) CountUnpaidBills(ctx context.Context, tankID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, b := range m.bills {
		if b.TankID == tankID && b.Status == BillUnpaid {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStorage) MarkBillPaid(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bills[id]
	if !ok {
		return nil
	}
	b.Status = BillPaid
	b.UpdatedAt = time.Now()
	m.bills[id] = b
	return nil
}

// Notifications

func (m *MemoryStorage) CreateNotification(ctx context.Context, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[n.ID] = n
	return nil
}

func (m *MemoryStorage) ListNotifications(ctx context.Context, userID string, now time.Time) ([]Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := now.Add(-NotificationTTL)
	var out []Notification
	for _, n := range m.notifications {
		if n.UserID == userID && n.CreatedAt.After(cutoff) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) PurgeExpiredNotifications(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := now.Add(-NotificationTTL)
	var purged int64
	for id, n := range m.notifications {
		if !n.CreatedAt.After(cutoff) {
			delete(m.notifications, id)
			purged++
		}
	}
	return purged, nil
}

// Tokens

func (m *MemoryStorage) CreateToken(ctx context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		now := time.Now()
		t.LastUsedAt = &now
		m.tokens[id] = t
	}
	return nil
}

// Casbin rules

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]CasbinRule, len(m.casbinRules))
	copy(out, m.casbinRules)
	return out, nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.casbinRules = append(m.casbinRules, rule)
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.casbinRules {
		if r.PType == rule.PType && r.V0 == rule.V0 && r.V1 == rule.V1 && r.V2 == rule.V2 {
			m.casbinRules = append(m.casbinRules[:i], m.casbinRules[i+1:]...)
			return nil
		}
	}
	return nil
}

// Settings

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Scheduled jobs

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, started time.Time, dur time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := 0
	if success {
		status = 1
	}
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      started,
		LastDurationMs: dur.Milliseconds(),
		LastSuccess:    status,
		LastError:      errMsg,
	}
	return nil
}

// Locks

func (m *MemoryStorage) AcquireLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *MemoryStorage) ReleaseLock(ctx context.Context, key int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held := m.locks[key]
	delete(m.locks, key)
	return held, nil
}

func (m *MemoryStorage) Ping(ctx context.Context) error { return nil }

func (m *MemoryStorage) Close() error { return nil }
