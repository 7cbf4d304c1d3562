package api

import (
	"context"

	"taskboard-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	CreateTask(ctx context.Context, in domain.CreateTaskInput) (*domain.CreateTaskResult, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error)
	FetchTeamTasks(ctx context.Context, teamID string) ([]domain.Task, error)
	CreateTeam(ctx context.Context, team domain.Team) (bool, error)
	CreateOrganization(ctx context.Context, org domain.Organization) error
	UpsertUser(ctx context.Context, user domain.User) error
	EnqueueEvents(ctx context.Context, events []domain.TaskEvent) error
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents reprocessing of duplicate webhook deliveries.
type Deduper interface {
	// Add records the delivery id and returns true if it was newly added.
	Add(ctx context.Context, deliveryID string) (bool, error)
	// Remove deletes a previously added id, used when processing fails so
	// the provider's retry is not swallowed.
	Remove(ctx context.Context, deliveryID string) error
}
