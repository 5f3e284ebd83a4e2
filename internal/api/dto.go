package api

import (
	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/studio"
	"github.com/starford/monteerly/internal/syncengine"
)

// CredentialsRequest is the body of sign-up and sign-in.
type CredentialsRequest struct {
	Email    string `json:"email" example:"ada@example.com" validate:"required"`
	Password string `json:"password" example:"correct-horse" validate:"required"`
}

// ProjectRequest is the body of project create and edit.
type ProjectRequest = studio.ProjectInput

// BriefRequest is the body of brief create.
type BriefRequest = studio.BriefInput

// StatusRequest is the body of a status transition.
type StatusRequest struct {
	Status models.Status `json:"status" example:"hiring" validate:"required"`
}

// RecordResponse is a single project or brief with the statuses it can move to.
type RecordResponse struct {
	models.Record
	Next []models.Status `json:"next"`
}

// ListResponse is a reconciled list of records.
type ListResponse struct {
	Records    []models.Record       `json:"records"`
	Aggregates syncengine.Aggregates `json:"aggregates"`
}
