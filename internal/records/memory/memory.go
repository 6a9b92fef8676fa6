package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"spendly/internal/core"
	"spendly/internal/records"
)

var _ records.Store = (*Store)(nil)

// Store keeps users and expenses in process memory.
type Store struct {
	mu       sync.Mutex
	expenses map[string]core.Expense
	byLocal  map[string]string // owner\x00localId -> expense id
	users    map[string]core.User
	byEmail  map[string]string
}

func New() *Store {
	return &Store{
		expenses: make(map[string]core.Expense),
		byLocal:  make(map[string]string),
		users:    make(map[string]core.User),
		byEmail:  make(map[string]string),
	}
}

type seedFile struct {
	Expenses []core.Expense `json:"expenses"`
}

// NewFromFile loads expenses from a JSON seed file. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, e := range seed.Expenses {
		if _, err := s.CreateExpense(context.Background(), e); err != nil {
			return nil, fmt.Errorf("seed expense %s: %w", e.ID, err)
		}
	}
	return s, nil
}

func localKey(owner string, localID *string) string {
	if localID == nil {
		return ""
	}
	return owner + "\x00" + *localID
}

func clone(e core.Expense) core.Expense {
	if e.LocalID != nil {
		id := *e.LocalID
		e.LocalID = &id
	}
	return e
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(e)
}

func (s *Store) insertLocked(e core.Expense) (core.Expense, error) {
	if e.ID == "" {
		return core.Expense{}, fmt.Errorf("create expense: missing id")
	}
	if _, ok := s.expenses[e.ID]; ok {
		return core.Expense{}, fmt.Errorf("create expense: duplicate id %s", e.ID)
	}
	if k := localKey(e.OwnerID, e.LocalID); k != "" {
		if _, ok := s.byLocal[k]; ok {
			return core.Expense{}, core.NewValidationError("localId", "localId already used")
		}
		s.byLocal[k] = e.ID
	}
	s.expenses[e.ID] = clone(e)
	return clone(e), nil
}

func (s *Store) GetExpense(_ context.Context, ownerID, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return core.Expense{}, core.ErrNotFound
	}
	return clone(e), nil
}

func (s *Store) UpdateExpense(_ context.Context, ownerID, id string, u core.ExpenseUpdate, now time.Time) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return core.Expense{}, core.ErrNotFound
	}
	e = u.Apply(e, now)
	s.expenses[id] = e
	return clone(e), nil
}

func (s *Store) DeleteExpense(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.OwnerID != ownerID {
		return core.ErrNotFound
	}
	delete(s.expenses, id)
	if k := localKey(e.OwnerID, e.LocalID); k != "" {
		delete(s.byLocal, k)
	}
	return nil
}

func (s *Store) ListExpenses(_ context.Context, f core.ExpenseFilter) ([]core.Expense, int, error) {
	s.mu.Lock()
	var out []core.Expense
	for _, e := range s.expenses {
		if f.Matches(e) {
			out = append(out, clone(e))
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return records.Less(out[i], out[j]) })
	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []core.Expense{}, total, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	if out == nil {
		out = []core.Expense{}
	}
	return out, total, nil
}

func (s *Store) UpsertByLocalID(_ context.Context, u core.LocalUpsert) (core.Expense, bool, error) {
	k := localKey(u.Expense.OwnerID, u.Expense.LocalID)
	if k == "" {
		return core.Expense{}, false, core.NewValidationError("localId", "localId is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, exists := s.byLocal[k]
	if !exists {
		e, err := s.insertLocked(u.Expense)
		return e, err == nil, err
	}
	cur := s.expenses[id]
	next := u.Expense
	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	if u.KeepOccurredAt {
		next.OccurredAt = cur.OccurredAt
	}
	s.expenses[id] = clone(next)
	return clone(next), false, nil
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	u.Email = core.NormalizeEmail(u.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return core.User{}, core.ErrEmailTaken
	}
	s.users[u.ID] = u
	s.byEmail[u.Email] = u.ID
	return u, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[core.NormalizeEmail(email)]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdateProfile(_ context.Context, id, name, currency string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	u.Name = name
	u.Currency = currency
	s.users[id] = u
	return u, nil
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	u.PasswordHash = passwordHash
	s.users[id] = u
	return nil
}
