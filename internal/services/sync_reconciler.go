package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"spendly/internal/amqp"
	"spendly/internal/core"
	"spendly/internal/records"
)

// DefaultSyncMaxBatch bounds the number of candidates accepted in one call.
const DefaultSyncMaxBatch = 500

type SyncItemStatus string

const (
	SyncCreated SyncItemStatus = "created"
	SyncUpdated SyncItemStatus = "updated"
	SyncFailed  SyncItemStatus = "failed"
)

// SyncCandidate is one client record of a batch. Err carries a decoding
// failure for the item; such candidates are reported as failed.
type SyncCandidate struct {
	Input ExpenseInput
	Err   error
}

type SyncItemResult struct {
	Index   int            `json:"index"`
	LocalID *string        `json:"localId"`
	Status  SyncItemStatus `json:"status"`
	Expense *core.Expense  `json:"expense,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SyncResult lists the outcome of every candidate in input order.
type SyncResult struct {
	Synced  []core.Expense   `json:"synced"`
	Results []SyncItemResult `json:"results"`
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Failed  int              `json:"failed"`
}

// SyncReconciler upserts offline-created records by (owner, localId).
//
// Candidates are processed one after another so a later candidate observes
// the writes of earlier ones: two candidates sharing a localId resolve to one
// record carrying the second candidate's values. The per-key atomicity across
// concurrent batches comes from the store's upsert, not from a lock here.
type SyncReconciler struct {
	store    records.ExpenseStore
	events   EventPublisher
	loc      *time.Location
	maxBatch int
	now      func() time.Time
	newID    func() string
}

// NewSyncReconciler creates a reconciler. events may be nil; maxBatch <= 0
// selects DefaultSyncMaxBatch.
func NewSyncReconciler(store records.ExpenseStore, events EventPublisher, loc *time.Location, maxBatch int) *SyncReconciler {
	if loc == nil {
		loc = time.Local
	}
	if maxBatch <= 0 {
		maxBatch = DefaultSyncMaxBatch
	}
	return &SyncReconciler{
		store:    store,
		events:   events,
		loc:      loc,
		maxBatch: maxBatch,
		now:      systemNow,
		newID:    newID,
	}
}

// Reconcile processes the batch for owner. Only batch-level problems are
// returned as errors; item failures are reported in the result.
func (r *SyncReconciler) Reconcile(ctx context.Context, owner string, candidates []SyncCandidate) (SyncResult, error) {
	if len(candidates) == 0 {
		return SyncResult{}, core.NewValidationError("expenses", "expenses must be a non-empty array")
	}
	if len(candidates) > r.maxBatch {
		return SyncResult{}, core.NewValidationError("expenses",
			fmt.Sprintf("at most %d expenses can be synced at once", r.maxBatch))
	}

	result := SyncResult{
		Synced:  make([]core.Expense, 0, len(candidates)),
		Results: make([]SyncItemResult, 0, len(candidates)),
	}
	for i, c := range candidates {
		item := r.reconcileOne(ctx, owner, i, c)
		switch item.Status {
		case SyncCreated:
			result.Created++
		case SyncUpdated:
			result.Updated++
		default:
			result.Failed++
		}
		if item.Expense != nil {
			result.Synced = append(result.Synced, *item.Expense)
		}
		result.Results = append(result.Results, item)
	}

	slog.InfoContext(ctx, "Sync batch reconciled",
		"owner_id", owner,
		"items", len(candidates),
		"created", result.Created,
		"updated", result.Updated,
		"failed", result.Failed)

	return result, nil
}

func (r *SyncReconciler) reconcileOne(ctx context.Context, owner string, index int, c SyncCandidate) SyncItemResult {
	item := SyncItemResult{Index: index, LocalID: normalizeLocalID(c.Input.LocalID)}
	if c.Err != nil {
		return failItem(item, c.Err)
	}

	e, err := c.Input.build(owner, r.newID(), r.loc, r.now())
	if err != nil {
		return failItem(item, err)
	}

	var (
		stored  core.Expense
		created = true
	)
	if e.LocalID == nil {
		stored, err = r.store.CreateExpense(ctx, e)
	} else {
		keepDate := strings.TrimSpace(c.Input.Date) == ""
		stored, created, err = r.store.UpsertByLocalID(ctx, core.LocalUpsert{Expense: e, KeepOccurredAt: keepDate})
	}
	if err != nil {
		slog.ErrorContext(ctx, "Failed to reconcile expense",
			"owner_id", owner,
			"index", index,
			"local_id", deref(e.LocalID),
			"error", err)
		return failItem(item, err)
	}

	item.Status = SyncUpdated
	if created {
		item.Status = SyncCreated
	}
	item.Expense = &stored
	publishEvent(ctx, r.events, amqp.EventSynced, stored)
	return item
}

// failItem exposes validation messages and hides store failures.
func failItem(item SyncItemResult, err error) SyncItemResult {
	item.Status = SyncFailed
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		item.Error = ve.Error()
	} else {
		item.Error = "failed to store expense"
	}
	return item
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
