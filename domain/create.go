package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// MaxAssignees caps the number of distinct assignees per task.
const MaxAssignees = 20

const (
	maxNameLen        = 100
	maxDescriptionLen = 2000
)

// Tx is the transaction capability handed to the creation routine. All reads
// and writes issued through it belong to a single atomic unit: the store must
// reject the commit when any record read here was concurrently modified.
type Tx interface {
	GetTeam(ctx context.Context, id string) (*Team, error)
	GetUser(ctx context.Context, id string) (*User, error)
	PutTask(ctx context.Context, t Task) error
	// AppendUserTask adds a task id to a user's back-reference list with
	// set-union semantics.
	AppendUserTask(ctx context.Context, userID, taskID string) error
	// UpdateTeam persists the advanced counter and appended task id.
	UpdateTeam(ctx context.Context, t Team) error
}

// CreateTaskInput is the raw creation request before sanitization.
type CreateTaskInput struct {
	TeamID       string   `json:"teamId"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	AssigneesIDs []string `json:"assigneesIds"`
	Deadline     string   `json:"deadline"`
}

// AssigneeOutcome records what happened to one assignee's back-reference
// inside the creation transaction. Skips are tolerated without aborting; the
// task still lists the assignee, only the user's denormalized task list is
// left untouched.
type AssigneeOutcome struct {
	UserID string
	Skip   SkipReason
}

// SkipReason names why an assignee back-reference was not written.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipNoUser    SkipReason = "user not found"
	SkipNotMember SkipReason = "user not a member of the team"
)

// CreateTaskResult reports the created task plus per-assignee outcomes for
// observability.
type CreateTaskResult struct {
	Task      Task
	Assignees []AssigneeOutcome
}

// ValidateCreateTask sanitizes a creation request. It runs before any store
// interaction; a failure here guarantees nothing was read or written.
func ValidateCreateTask(in CreateTaskInput, now time.Time) (CreateTaskInput, error) {
	teamID := CleanIdentifier(in.TeamID)
	if teamID == "" {
		return CreateTaskInput{}, fmt.Errorf("%w: teamId is required", ErrValidation)
	}
	name := CleanText(in.Name, maxNameLen)
	if name == "" {
		return CreateTaskInput{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	assignees := dedupeIdentifiers(in.AssigneesIDs)
	if len(assignees) > MaxAssignees {
		return CreateTaskInput{}, fmt.Errorf("%w: too many assignees (max %d)", ErrValidation, MaxAssignees)
	}
	deadline, err := ParseFutureDeadline(in.Deadline, now)
	if err != nil {
		return CreateTaskInput{}, err
	}
	return CreateTaskInput{
		TeamID:       teamID,
		Name:         name,
		Description:  CleanText(in.Description, maxDescriptionLen),
		AssigneesIDs: assignees,
		Deadline:     deadline,
	}, nil
}

// dedupeIdentifiers cleans assignee ids, drops empties and removes duplicates
// preserving first-occurrence order.
func dedupeIdentifiers(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id := CleanIdentifier(raw)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CreateTask runs the multi-record creation inside the given transaction. The
// input must already have passed ValidateCreateTask. On success the team's
// counter advanced by exactly one, the task record exists with status To Do,
// and every member assignee's task list references the new task. On failure
// the transaction owner must discard all staged writes.
func CreateTask(ctx context.Context, tx Tx, in CreateTaskInput, logger *log.Logger) (*CreateTaskResult, error) {
	team, err := tx.GetTeam(ctx, in.TeamID)
	if err != nil {
		return nil, err
	}

	taskID := TaskID(in.TeamID, team.TaskNumber)

	outcomes := make([]AssigneeOutcome, 0, len(in.AssigneesIDs))
	for _, userID := range in.AssigneesIDs {
		outcome := AssigneeOutcome{UserID: userID}
		user, err := tx.GetUser(ctx, userID)
		switch {
		case err != nil && errors.Is(err, ErrNotFound):
			outcome.Skip = SkipNoUser
		case err != nil:
			return nil, err
		case !user.MemberOf(in.TeamID):
			outcome.Skip = SkipNotMember
		}
		if outcome.Skip != SkipNone {
			if logger != nil {
				logger.WithFields(log.Fields{
					"task":   taskID,
					"user":   userID,
					"reason": string(outcome.Skip),
				}).Warn("skipping assignee back-reference")
			}
			outcomes = append(outcomes, outcome)
			continue
		}
		if err := tx.AppendUserTask(ctx, userID, taskID); err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}

	task := Task{
		ID:           taskID,
		TeamID:       in.TeamID,
		Name:         in.Name,
		Description:  in.Description,
		AssigneesIDs: in.AssigneesIDs,
		Deadline:     in.Deadline,
		Status:       StatusToDo,
	}
	if err := tx.PutTask(ctx, task); err != nil {
		return nil, err
	}

	team.TaskNumber++
	team.TasksIDs = append(team.TasksIDs, taskID)
	if err := tx.UpdateTeam(ctx, *team); err != nil {
		return nil, err
	}

	return &CreateTaskResult{Task: task, Assignees: outcomes}, nil
}
