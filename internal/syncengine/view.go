package syncengine

import (
	"math"
	"slices"
	"time"

	"github.com/starford/monteerly/internal/docstore"
	"github.com/starford/monteerly/internal/models"
)

// SortKey orders the local cache.
type SortKey string

const (
	SortCreatedDesc SortKey = "created_desc"
	SortDeadlineAsc SortKey = "deadline_asc"
	SortBudgetDesc  SortKey = "budget_desc"
)

// ParseSortKey maps a query-string value to a SortKey, defaulting to
// SortCreatedDesc.
func ParseSortKey(s string) SortKey {
	switch SortKey(s) {
	case SortDeadlineAsc, SortBudgetDesc:
		return SortKey(s)
	}
	return SortCreatedDesc
}

// Options shape a subscription.
type Options struct {
	// Sort orders the cache. Zero value means SortCreatedDesc.
	Sort SortKey
	// Filter narrows View.Visible. It never affects the cache or aggregates.
	Filter func(models.Record) bool
	// Match adds server-side conditions on top of the owner scope.
	Match []docstore.Filter
	// Limit caps the server-side result set; 0 means no limit.
	Limit int
}

// StatusFilter returns a Filter accepting the given statuses.
func StatusFilter(statuses ...models.Status) func(models.Record) bool {
	if len(statuses) == 0 {
		return nil
	}
	return func(r models.Record) bool {
		return slices.Contains(statuses, r.Status)
	}
}

// Aggregates are derived from the whole cache on every snapshot.
type Aggregates struct {
	Total       int                   `json:"total"`
	ByStatus    map[models.Status]int `json:"by_status"`
	TotalBudget float64               `json:"total_budget"`
	Active      int                   `json:"active"`
}

// Count returns the number of records in status s.
func (a Aggregates) Count(s models.Status) int {
	return a.ByStatus[s]
}

// View is the reconciled state of one subscription. Slices are shared
// between observers and must be treated as read-only.
type View struct {
	Kind       models.Kind     `json:"kind"`
	Records    []models.Record `json:"records"`
	Visible    []models.Record `json:"visible"`
	Aggregates Aggregates      `json:"aggregates"`
	Version    uint64          `json:"version"`
	ReadAt     time.Time       `json:"read_at"`
}

// Recent returns the first n cached records.
func (v View) Recent(n int) []models.Record {
	if n > len(v.Records) {
		n = len(v.Records)
	}
	return v.Records[:n]
}

// WithStatus returns cached records in any of the statuses, in cache order.
func (v View) WithStatus(statuses ...models.Status) []models.Record {
	out := []models.Record{}
	for _, r := range v.Records {
		if slices.Contains(statuses, r.Status) {
			out = append(out, r)
		}
	}
	return out
}

// Reconcile materializes a snapshot into a View: every document is
// defaulted, the list is stably sorted, and aggregates are recomputed.
func Reconcile(kind models.Kind, docs []docstore.Doc, opts Options) View {
	records := make([]models.Record, len(docs))
	for i, d := range docs {
		records[i] = models.Materialize(kind, d.ID, d.Fields)
	}
	slices.SortStableFunc(records, comparator(opts.Sort))

	visible := records
	if opts.Filter != nil {
		visible = make([]models.Record, 0, len(records))
		for _, r := range records {
			if opts.Filter(r) {
				visible = append(visible, r)
			}
		}
	}

	return View{
		Kind:       kind,
		Records:    records,
		Visible:    visible,
		Aggregates: aggregate(records),
	}
}

func aggregate(records []models.Record) Aggregates {
	agg := Aggregates{
		Total:    len(records),
		ByStatus: make(map[models.Status]int),
	}
	for _, r := range records {
		agg.ByStatus[r.Status]++
		agg.TotalBudget = addBudget(agg.TotalBudget, r.Budget)
		if r.Status == models.StatusInProgress || r.Status == models.StatusReview {
			agg.Active++
		}
	}
	return agg
}

// addBudget sums budgets, skipping non-finite values and saturating at
// ±MaxFloat64 so the total always encodes as JSON.
func addBudget(total, budget float64) float64 {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return total
	}
	sum := total + budget
	switch {
	case math.IsInf(sum, 1):
		return math.MaxFloat64
	case math.IsInf(sum, -1):
		return -math.MaxFloat64
	}
	return sum
}

func comparator(key SortKey) func(a, b models.Record) int {
	switch key {
	case SortDeadlineAsc:
		return func(a, b models.Record) int {
			switch {
			case a.Deadline == nil && b.Deadline == nil:
				return 0
			case a.Deadline == nil:
				return 1
			case b.Deadline == nil:
				return -1
			}
			return a.Deadline.Compare(*b.Deadline)
		}
	case SortBudgetDesc:
		return func(a, b models.Record) int {
			switch {
			case a.Budget > b.Budget:
				return -1
			case a.Budget < b.Budget:
				return 1
			}
			return 0
		}
	default:
		return func(a, b models.Record) int {
			return b.CreatedAt.Compare(a.CreatedAt)
		}
	}
}
