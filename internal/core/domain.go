package core

import (
	"strings"
	"time"
)

const (
	CategoryFood          Category = "Food"
	CategoryTransport     Category = "Transport"
	CategoryShopping      Category = "Shopping"
	CategoryEntertainment Category = "Entertainment"
	CategoryBills         Category = "Bills"
	CategoryHealth        Category = "Health"
	CategoryEducation     Category = "Education"
	CategoryOther         Category = "Other"
)

const (
	PaymentCash       PaymentMethod = "Cash"
	PaymentCreditCard PaymentMethod = "Credit Card"
	PaymentDebitCard  PaymentMethod = "Debit Card"
	PaymentUPI        PaymentMethod = "UPI"
	PaymentNetBanking PaymentMethod = "Net Banking"
	PaymentOther      PaymentMethod = "Other"
)

const (
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusPending SyncStatus = "pending"
)

const (
	MaxDescriptionLength = 500
	MinPasswordLength    = 6
	DefaultCurrency      = "USD"
)

type (
	Category      string
	PaymentMethod string
	SyncStatus    string

	// Expense is a single spending record owned by one user.
	Expense struct {
		ID            string        `json:"id"`
		OwnerID       string        `json:"owner"`
		Amount        Money         `json:"amount"`
		Category      Category      `json:"category"`
		PaymentMethod PaymentMethod `json:"paymentMethod"`
		Description   string        `json:"description"`
		OccurredAt    time.Time     `json:"date"`
		SyncStatus    SyncStatus    `json:"syncStatus"`
		LocalID       *string       `json:"localId"`
		CreatedAt     time.Time     `json:"createdAt"`
		UpdatedAt     time.Time     `json:"updatedAt"`
	}

	// ExpenseUpdate carries the fields of a partial update. Nil means unchanged.
	ExpenseUpdate struct {
		Amount        *Money
		Category      *Category
		PaymentMethod *PaymentMethod
		Description   *string
		OccurredAt    *time.Time
	}

	// ExpenseFilter selects an owner's records. Zero Limit means no limit.
	ExpenseFilter struct {
		OwnerID  string
		Category *Category
		From     *time.Time // inclusive
		To       *time.Time // exclusive
		Offset   int
		Limit    int
	}

	// LocalUpsert is a reconciled record keyed by (OwnerID, LocalID).
	// When KeepOccurredAt is set an existing record keeps its date.
	LocalUpsert struct {
		Expense        Expense
		KeepOccurredAt bool
	}

	User struct {
		ID           string    `json:"id"`
		Name         string    `json:"name"`
		Email        string    `json:"email"`
		PasswordHash string    `json:"-"`
		Currency     string    `json:"currency"`
		CreatedAt    time.Time `json:"createdAt"`
	}
)

var (
	categories = []Category{
		CategoryFood, CategoryTransport, CategoryShopping, CategoryEntertainment,
		CategoryBills, CategoryHealth, CategoryEducation, CategoryOther,
	}
	paymentMethods = []PaymentMethod{
		PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentUPI, PaymentNetBanking, PaymentOther,
	}
	paymentAliases = map[string]PaymentMethod{
		"CreditCard": PaymentCreditCard,
		"DebitCard":  PaymentDebitCard,
		"NetBanking": PaymentNetBanking,
	}
)

// Categories returns the closed set of expense categories.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// PaymentMethods returns the closed set of payment methods.
func PaymentMethods() []PaymentMethod {
	return append([]PaymentMethod(nil), paymentMethods...)
}

func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range categories {
		if string(c) == s {
			return c, nil
		}
	}
	if s == "" {
		return "", NewValidationError("category", "category is required")
	}
	return "", NewValidationError("category", "invalid category '"+s+"'")
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	s = strings.TrimSpace(s)
	for _, p := range paymentMethods {
		if string(p) == s {
			return p, nil
		}
	}
	if p, ok := paymentAliases[s]; ok {
		return p, nil
	}
	if s == "" {
		return "", NewValidationError("paymentMethod", "payment method is required")
	}
	return "", NewValidationError("paymentMethod", "invalid payment method '"+s+"'")
}

func ParseSyncStatus(s string) (SyncStatus, error) {
	switch SyncStatus(s) {
	case SyncStatusSynced, SyncStatusPending:
		return SyncStatus(s), nil
	}
	return "", NewValidationError("syncStatus", "invalid sync status '"+s+"'")
}

func (c Category) Validate() error {
	for _, known := range categories {
		if known == c {
			return nil
		}
	}
	_, err := ParseCategory(string(c))
	if err == nil {
		err = NewValidationError("category", "invalid category '"+string(c)+"'")
	}
	return err
}

func (p PaymentMethod) Validate() error {
	for _, m := range paymentMethods {
		if m == p {
			return nil
		}
	}
	if p == "" {
		return NewValidationError("paymentMethod", "payment method is required")
	}
	return NewValidationError("paymentMethod", "invalid payment method '"+string(p)+"'")
}

// Validate checks the client-controlled fields of the record.
func (e Expense) Validate() error {
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if err := e.Category.Validate(); err != nil {
		return err
	}
	if err := e.PaymentMethod.Validate(); err != nil {
		return err
	}
	if len(e.Description) > MaxDescriptionLength {
		return NewValidationError("description", "description too long (max 500 characters)")
	}
	if e.LocalID != nil && strings.TrimSpace(*e.LocalID) == "" {
		return NewValidationError("localId", "localId cannot be blank")
	}
	if _, err := ParseSyncStatus(string(e.SyncStatus)); err != nil {
		return err
	}
	return nil
}

func (u ExpenseUpdate) Validate() error {
	if u.Amount != nil {
		if err := u.Amount.Validate(); err != nil {
			return err
		}
	}
	if u.Category != nil {
		if err := u.Category.Validate(); err != nil {
			return err
		}
	}
	if u.PaymentMethod != nil {
		if err := u.PaymentMethod.Validate(); err != nil {
			return err
		}
	}
	if u.Description != nil && len(*u.Description) > MaxDescriptionLength {
		return NewValidationError("description", "description too long (max 500 characters)")
	}
	if u.OccurredAt != nil && u.OccurredAt.IsZero() {
		return NewValidationError("date", "date cannot be zero")
	}
	return nil
}

// IsEmpty reports whether the update changes nothing.
func (u ExpenseUpdate) IsEmpty() bool {
	return u.Amount == nil && u.Category == nil && u.PaymentMethod == nil &&
		u.Description == nil && u.OccurredAt == nil
}

// Apply returns a copy of e with the update applied and UpdatedAt set to now.
func (u ExpenseUpdate) Apply(e Expense, now time.Time) Expense {
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.PaymentMethod != nil {
		e.PaymentMethod = *u.PaymentMethod
	}
	if u.Description != nil {
		e.Description = *u.Description
	}
	if u.OccurredAt != nil {
		e.OccurredAt = *u.OccurredAt
	}
	e.UpdatedAt = now
	return e
}

// Matches reports whether e is selected by the filter, ignoring pagination.
func (f ExpenseFilter) Matches(e Expense) bool {
	if e.OwnerID != f.OwnerID {
		return false
	}
	if f.Category != nil && e.Category != *f.Category {
		return false
	}
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.OccurredAt.Before(*f.To) {
		return false
	}
	return true
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if len(u.Name) > 100 {
		return NewValidationError("name", "name too long (max 100 characters)")
	}
	email := NormalizeEmail(u.Email)
	if email == "" {
		return NewValidationError("email", "email is required")
	}
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t\n") {
		return NewValidationError("email", "invalid email address")
	}
	return ValidateCurrency(u.Currency)
}

// ValidateCurrency accepts three-letter uppercase ISO style codes.
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return NewValidationError("currency", "currency must be a 3-letter code")
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return NewValidationError("currency", "currency must be a 3-letter code")
		}
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return NewValidationError("password", "password must be at least 6 characters")
	}
	if len(password) > 72 {
		return NewValidationError("password", "password must be at most 72 characters")
	}
	return nil
}
