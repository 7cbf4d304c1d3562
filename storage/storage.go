// Package storage persists the tracker's records in Azure Table storage, one
// table per collection, and publishes task events to an Azure Queue. Records
// are point-read and point-written; the task creation path runs as an
// optimistic transaction gated on the team record's ETag.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Collection names double as partition keys for the singleton-keyed tables.
const (
	collectionTasks         = "tasks"
	collectionTeams         = "teams"
	collectionUsers         = "users"
	collectionOrganizations = "organizations"
)

// Storage provides access to the underlying persistence mechanisms.
type Storage struct {
	taskTable  *aztables.Client
	teamTable  *aztables.Client
	userTable  *aztables.Client
	orgTable   *aztables.Client
	eventQueue *azqueue.QueueClient
	logger     *log.Logger
}

// Tables groups the table names required by New.
type Tables struct {
	Tasks         string
	Teams         string
	Users         string
	Organizations string
}

// New creates a Storage instance from the given connection string.
func New(connStr string, tables Tables, eventQueue string, logger *log.Logger) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	eq, err := azqueue.NewQueueClientFromConnectionString(connStr, eventQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:  svc.NewClient(tables.Tasks),
		teamTable:  svc.NewClient(tables.Teams),
		userTable:  svc.NewClient(tables.Users),
		orgTable:   svc.NewClient(tables.Organizations),
		eventQueue: eq,
		logger:     logger,
	}, nil
}

// GetTask retrieves a single task record.
func (s *Storage) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, collectionTasks, id, nil)
	if err != nil {
		return nil, mapReadError(err, "task", id)
	}
	task, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies a validated partial edit to a task record as a single
// merge write. It is deliberately not transactional with any other record;
// updates maintain no counters or back-references. Concurrent updates follow
// last-write-wins per field set.
func (s *Storage) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := domain.ApplyTaskUpdate(*current, upd)
	data, err := encodeTaskEntity(merged)
	if err != nil {
		return nil, err
	}
	anyTag := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, data, &aztables.UpdateEntityOptions{
		IfMatch:    &anyTag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return nil, mapReadError(err, "task", id)
	}
	return &merged, nil
}

// FetchTeamTasks returns every task belonging to the team. An unknown team is
// NotFound, not an empty board; the filter below would happily match nothing.
func (s *Storage) FetchTeamTasks(ctx context.Context, teamID string) ([]domain.Task, error) {
	if _, err := s.teamTable.GetEntity(ctx, collectionTeams, teamID, nil); err != nil {
		return nil, mapReadError(err, "team", teamID)
	}
	filter := fmt.Sprintf("PartitionKey eq '%s' and TeamID eq '%s'", collectionTasks, sanitizeFilterValue(teamID))
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			task, err := decodeTaskEntity(e)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

// CreateTeam inserts the team when its derived id is free. It reports whether
// a new record was written; an existing team is not an error.
func (s *Storage) CreateTeam(ctx context.Context, team domain.Team) (bool, error) {
	data, err := encodeTeamEntity(team)
	if err != nil {
		return false, err
	}
	if _, err := s.teamTable.AddEntity(ctx, data, nil); err != nil {
		if statusCode(err) == 409 {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateOrganization inserts the organization, failing when the derived id is
// already taken.
func (s *Storage) CreateOrganization(ctx context.Context, org domain.Organization) error {
	data, err := encodeOrganizationEntity(org)
	if err != nil {
		return err
	}
	if _, err := s.orgTable.AddEntity(ctx, data, nil); err != nil {
		if statusCode(err) == 409 {
			return fmt.Errorf("%w: organization %q", domain.ErrAlreadyExists, org.ID)
		}
		return err
	}
	return nil
}

// UpsertUser writes the user record created from an identity event. Redelivered
// events overwrite with identical data, so upsert semantics are safe here.
func (s *Storage) UpsertUser(ctx context.Context, user domain.User) error {
	data, err := encodeUserEntity(user)
	if err != nil {
		return err
	}
	_, err = s.userTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{
		UpdateMode: aztables.UpdateModeReplace,
	})
	return err
}

// EnqueueEvents sends the given task events to the event queue.
func (s *Storage) EnqueueEvents(ctx context.Context, events []domain.TaskEvent) error {
	for _, ev := range events {
		data, err := encodeEvent(ev)
		if err != nil {
			return err
		}
		if _, err := s.eventQueue.EnqueueMessage(ctx, string(data), nil); err != nil {
			return err
		}
	}
	return nil
}

func statusCode(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

func mapReadError(err error, collection, id string) error {
	switch statusCode(err) {
	case 404:
		return &domain.NotFoundError{Collection: collection, ID: id}
	case 409, 412:
		return fmt.Errorf("%w: %s %q", domain.ErrConflict, collection, id)
	}
	return err
}

// sanitizeFilterValue escapes single quotes for OData filter literals.
func sanitizeFilterValue(v string) string {
	out := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' {
			out = append(out, '\'')
		}
		out = append(out, v[i])
	}
	return string(out)
}
