package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mstrand/foyer/internal/models"
)

// stubTxRunner satisfies TxRunner without a database; the callback receives
// a nil transaction.
type stubTxRunner struct{}

func (stubTxRunner) WithTransaction(ctx context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

// MockAccountStore implements AccountStore for testing
type MockAccountStore struct {
	GetByIDFunc          func(ctx context.Context, id string) (*models.Account, error)
	GetByIDForUpdateFunc func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc       func(ctx context.Context, email string) (*models.Account, error)
	ActiveByEmailFunc    func(ctx context.Context, email string) (*models.Account, error)
	ActiveByAnyEmailFunc func(ctx context.Context, email string) (*models.Account, error)
	EmailTakenFunc       func(ctx context.Context, email, excludeID string) (bool, error)
	CreateFunc           func(ctx context.Context, account *models.Account) (*models.Account, error)
	UpdateFunc           func(ctx context.Context, account *models.Account) (*models.Account, error)
}

func (m *MockAccountStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) ActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.ActiveByEmailFunc != nil {
		return m.ActiveByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) ActiveByAnyEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.ActiveByAnyEmailFunc != nil {
		return m.ActiveByAnyEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountStore) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	if m.EmailTakenFunc != nil {
		return m.EmailTakenFunc(ctx, email, excludeID)
	}
	return false, nil
}

func (m *MockAccountStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

func (m *MockAccountStore) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, account)
	}
	return nil, models.ErrInternalServer
}

// memStore is an in-memory AccountStore used for end-to-end state machine
// scenarios where one operation's output feeds the next.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
}

func newMemStore() *memStore {
	return &memStore{accounts: make(map[string]*models.Account)}
}

func copyAccount(a *models.Account) *models.Account {
	c := *a
	copyPtr := func(p **string) {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	copyPtr(&c.NewEmail)
	copyPtr(&c.EmailConfirmCode)
	copyPtr(&c.NewEmailConfirmCode)
	copyPtr(&c.PasswordResetCode)
	copyPtr(&c.AvatarURL)
	copyPtr(&c.AvatarKey)
	return &c
}

func (m *memStore) GetByID(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return copyAccount(a), nil
	}
	return nil, models.ErrNotFound
}

func (m *memStore) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return m.GetByID(ctx, id)
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.IsActive && strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) ActiveByAnyEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if !a.IsActive {
			continue
		}
		if strings.EqualFold(a.Email, email) || (a.NewEmail != nil && strings.EqualFold(*a.NewEmail, email)) {
			return copyAccount(a), nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memStore) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.ID == excludeID {
			continue
		}
		if strings.EqualFold(a.Email, email) || (a.NewEmail != nil && strings.EqualFold(*a.NewEmail, email)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, account *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account.ID = uuid.New().String()
	account.DateJoined = time.Now()
	account.UpdatedAt = account.DateJoined
	m.accounts[account.ID] = copyAccount(account)
	return copyAccount(account), nil
}

func (m *memStore) Update(ctx context.Context, account *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; !ok {
		return nil, models.ErrNotFound
	}
	account.UpdatedAt = time.Now()
	m.accounts[account.ID] = copyAccount(account)
	return copyAccount(account), nil
}

func (m *memStore) SetAvatarKey(ctx context.Context, id, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.AvatarKey = &key
	a.UpdatedAt = time.Now()
	return nil
}

// fixedStore adapts any AccountStore to a TxStore that ignores the
// transaction.
func fixedStore(store AccountStore) TxStore {
	return func(tx pgx.Tx) AccountStore { return store }
}
