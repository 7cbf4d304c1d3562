package storage

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Memory is an in-process store with the same surface as Storage. It backs
// local mode and tests; its creation transaction is genuinely atomic because
// the whole unit runs under one lock.
type Memory struct {
	mu     sync.Mutex
	tasks  map[string]domain.Task
	teams  map[string]domain.Team
	users  map[string]domain.User
	orgs   map[string]domain.Organization
	events []domain.TaskEvent
	logger *log.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(logger *log.Logger) *Memory {
	return &Memory{
		tasks:  map[string]domain.Task{},
		teams:  map[string]domain.Team{},
		users:  map[string]domain.User{},
		orgs:   map[string]domain.Organization{},
		logger: logger,
	}
}

// memTx implements domain.Tx against a locked Memory. Writes are staged and
// applied only when the creation routine succeeds.
type memTx struct {
	m *Memory

	pendingTask *domain.Task
	pendingTeam *domain.Team
	appends     map[string][]string
}

func (tx *memTx) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	team, ok := tx.m.teams[id]
	if !ok {
		return nil, &domain.NotFoundError{Collection: "team", ID: id}
	}
	return &team, nil
}

func (tx *memTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, ok := tx.m.users[id]
	if !ok {
		return nil, &domain.NotFoundError{Collection: "user", ID: id}
	}
	return &user, nil
}

func (tx *memTx) PutTask(ctx context.Context, t domain.Task) error {
	if _, exists := tx.m.tasks[t.ID]; exists {
		return fmt.Errorf("%w: task %q", domain.ErrConflict, t.ID)
	}
	tx.pendingTask = &t
	return nil
}

func (tx *memTx) AppendUserTask(ctx context.Context, userID, taskID string) error {
	tx.appends[userID] = append(tx.appends[userID], taskID)
	return nil
}

func (tx *memTx) UpdateTeam(ctx context.Context, t domain.Team) error {
	tx.pendingTeam = &t
	return nil
}

func (tx *memTx) apply() {
	tx.m.tasks[tx.pendingTask.ID] = *tx.pendingTask
	tx.m.teams[tx.pendingTeam.ID] = *tx.pendingTeam
	for userID, taskIDs := range tx.appends {
		user := tx.m.users[userID]
	next:
		for _, taskID := range taskIDs {
			for _, existing := range user.Tasks {
				if existing == taskID {
					continue next
				}
			}
			user.Tasks = append(user.Tasks, taskID)
		}
		tx.m.users[userID] = user
	}
}

// CreateTask runs the creation transaction atomically.
func (m *Memory) CreateTask(ctx context.Context, in domain.CreateTaskInput) (*domain.CreateTaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, appends: map[string][]string{}}
	res, err := domain.CreateTask(ctx, tx, in, m.logger)
	if err != nil {
		return nil, err
	}
	tx.apply()
	return res, nil
}

func (m *Memory) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Collection: "task", ID: id}
	}
	return &task, nil
}

func (m *Memory) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Collection: "task", ID: id}
	}
	merged := domain.ApplyTaskUpdate(task, upd)
	m.tasks[id] = merged
	return &merged, nil
}

func (m *Memory) FetchTeamTasks(ctx context.Context, teamID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[teamID]
	if !ok {
		return nil, &domain.NotFoundError{Collection: "team", ID: teamID}
	}
	tasks := make([]domain.Task, 0, len(team.TasksIDs))
	for _, id := range team.TasksIDs {
		if task, ok := m.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

func (m *Memory) CreateTeam(ctx context.Context, team domain.Team) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.teams[team.ID]; exists {
		return false, nil
	}
	m.teams[team.ID] = team
	return true, nil
}

func (m *Memory) CreateOrganization(ctx context.Context, org domain.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.orgs[org.ID]; exists {
		return fmt.Errorf("%w: organization %q", domain.ErrAlreadyExists, org.ID)
	}
	m.orgs[org.ID] = org
	return nil
}

func (m *Memory) UpsertUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
	return nil
}

func (m *Memory) EnqueueEvents(ctx context.Context, events []domain.TaskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

// Events returns the enqueued events, for tests and local inspection.
func (m *Memory) Events() []domain.TaskEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TaskEvent, len(m.events))
	copy(out, m.events)
	return out
}

// SeedTeam and SeedUser install fixtures; they are used by local mode and tests.
func (m *Memory) SeedTeam(team domain.Team) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teams[team.ID] = team
}

func (m *Memory) SeedUser(user domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.ID] = user
}
