// Package models defines the domain types for Monteerly Studio.
package models

import "time"

// Kind selects the collection a Record lives in and its workflow.
type Kind string

const (
	KindProject Kind = "project"
	KindBrief   Kind = "brief"
)

// Collection returns the store collection backing the kind.
func (k Kind) Collection() string {
	switch k {
	case KindProject:
		return CollectionProjects
	case KindBrief:
		return CollectionBriefs
	default:
		return ""
	}
}

// InitialStatus is the status applied to new records and to stored
// documents that carry no recognizable status.
func (k Kind) InitialStatus() Status {
	if k == KindBrief {
		return StatusPending
	}
	return StatusDraft
}

// Statuses lists the workflow states of the kind in display order.
func (k Kind) Statuses() []Status {
	if k == KindBrief {
		return []Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted, StatusRejected}
	}
	return []Status{StatusDraft, StatusHiring, StatusInProgress, StatusReview, StatusCompleted}
}

// Valid reports whether s is one of the kind's statuses.
func (k Kind) Valid(s Status) bool {
	for _, st := range k.Statuses() {
		if st == s {
			return true
		}
	}
	return false
}

// Collection names.
const (
	CollectionUsers    = "users"
	CollectionProjects = "projects"
	CollectionBriefs   = "briefs"
)

// Stored field names.
const (
	FieldOwner        = "userId"
	FieldTitle        = "title"
	FieldDescription  = "description"
	FieldClientName   = "clientName"
	FieldBudget       = "budget"
	FieldDeadline     = "deadline"
	FieldStatus       = "status"
	FieldEscrowStatus = "escrowStatus"
	FieldCreatedAt    = "createdAt"
	FieldEmail        = "email"
)

// Status is a workflow state. Projects and briefs share the value space.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusHiring     Status = "hiring"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusCompleted  Status = "completed"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusRejected   Status = "rejected"
)

// EscrowStatus tracks project funding. It has no transition rules.
type EscrowStatus string

const (
	EscrowUnfunded EscrowStatus = "unfunded"
	EscrowFunded   EscrowStatus = "funded"
	EscrowReleased EscrowStatus = "released"
	EscrowDisputed EscrowStatus = "disputed"
)

// Valid reports whether e is a known escrow state.
func (e EscrowStatus) Valid() bool {
	switch e {
	case EscrowUnfunded, EscrowFunded, EscrowReleased, EscrowDisputed:
		return true
	}
	return false
}

// Record is a persisted Project or Brief.
type Record struct {
	ID           string       `json:"id"`
	Kind         Kind         `json:"kind"`
	OwnerID      string       `json:"owner_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	ClientName   string       `json:"client_name,omitempty"`
	Budget       float64      `json:"budget"`
	Deadline     *time.Time   `json:"deadline,omitempty"`
	Status       Status       `json:"status"`
	EscrowStatus EscrowStatus `json:"escrow_status,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Profile is the per-identity document in the users collection.
type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
