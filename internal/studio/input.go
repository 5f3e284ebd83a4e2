package studio

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/models"
)

// Validation messages shown next to the offending field.
const (
	msgTitleRequired    = "title is required"
	msgBudgetPositive   = "budget must be greater than zero"
	msgDeadlineRequired = "deadline is required"
	msgDeadlineFormat   = "deadline must be YYYY-MM-DD or RFC 3339"
	msgBudgetTooLarge   = "budget is too large"
)

// MaxBudget keeps budget sums finite and JSON-encodable.
const MaxBudget = 1e12

// ParseDeadline accepts a calendar date (YYYY-MM-DD) or an RFC 3339
// timestamp. An empty string yields nil, which validation reports as
// missing.
func ParseDeadline(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, ok := models.ParseTime(strings.TrimSpace(raw))
	if !ok {
		return nil, &apperr.ValidationError{Fields: map[string]string{models.FieldDeadline: msgDeadlineFormat}}
	}
	return &t, nil
}

func decodeDeadline(raw json.RawMessage) (*time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &apperr.ValidationError{Fields: map[string]string{models.FieldDeadline: msgDeadlineFormat}}
	}
	return ParseDeadline(s)
}

// ProjectInput is the editable part of a project.
type ProjectInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Budget      float64    `json:"budget"`
	Deadline    *time.Time `json:"deadline"`
}

// UnmarshalJSON accepts the deadline in any form ParseDeadline does.
func (in *ProjectInput) UnmarshalJSON(data []byte) error {
	type plain ProjectInput
	aux := struct {
		*plain
		Deadline json.RawMessage `json:"deadline"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	deadline, err := decodeDeadline(aux.Deadline)
	if err != nil {
		return err
	}
	in.Deadline = deadline
	return nil
}

func (in *ProjectInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
}

// Validate checks the fields every project must carry.
func (in ProjectInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error(msgTitleRequired)),
		validation.Field(&in.Budget, budgetRules...),
		validation.Field(&in.Deadline, validation.Required.Error(msgDeadlineRequired)),
	)
}

func (in ProjectInput) fields() map[string]any {
	return map[string]any{
		models.FieldTitle:       in.Title,
		models.FieldDescription: in.Description,
		models.FieldBudget:      in.Budget,
		models.FieldDeadline:    in.Deadline.UTC(),
	}
}

// BriefInput is a new client brief.
type BriefInput struct {
	Title       string     `json:"title"`
	ClientName  string     `json:"client_name"`
	Description string     `json:"description"`
	Budget      float64    `json:"budget"`
	Deadline    *time.Time `json:"deadline"`
}

// UnmarshalJSON accepts the deadline in any form ParseDeadline does.
func (in *BriefInput) UnmarshalJSON(data []byte) error {
	type plain BriefInput
	aux := struct {
		*plain
		Deadline json.RawMessage `json:"deadline"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	deadline, err := decodeDeadline(aux.Deadline)
	if err != nil {
		return err
	}
	in.Deadline = deadline
	return nil
}

func (in *BriefInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.ClientName = strings.TrimSpace(in.ClientName)
	in.Description = strings.TrimSpace(in.Description)
}

// Validate checks the fields every brief must carry.
func (in BriefInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required.Error(msgTitleRequired)),
		validation.Field(&in.Budget, budgetRules...),
		validation.Field(&in.Deadline, validation.Required.Error(msgDeadlineRequired)),
	)
}

func (in BriefInput) fields() map[string]any {
	return map[string]any{
		models.FieldTitle:       in.Title,
		models.FieldClientName:  in.ClientName,
		models.FieldDescription: in.Description,
		models.FieldBudget:      in.Budget,
		models.FieldDeadline:    in.Deadline.UTC(),
	}
}

var budgetRules = []validation.Rule{
	validation.Required.Error(msgBudgetPositive),
	validation.Min(0.0).Exclusive().Error(msgBudgetPositive),
	validation.Max(MaxBudget).Error(msgBudgetTooLarge),
}

// asValidationError converts ozzo field errors into the shared taxonomy.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return err
	}
	fields := make(map[string]string, len(errs))
	for field, fieldErr := range errs {
		fields[field] = fieldErr.Error()
	}
	return &apperr.ValidationError{Fields: fields}
}
