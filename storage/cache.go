package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"taskboard-api/domain"
)

type backend interface {
	CreateTask(ctx context.Context, in domain.CreateTaskInput) (*domain.CreateTaskResult, error)
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error)
	FetchTeamTasks(ctx context.Context, teamID string) ([]domain.Task, error)
	CreateTeam(ctx context.Context, team domain.Team) (bool, error)
	CreateOrganization(ctx context.Context, org domain.Organization) error
	UpsertUser(ctx context.Context, user domain.User) error
	EnqueueEvents(ctx context.Context, events []domain.TaskEvent) error
}

// Cache wraps a store with Redis-backed caching of board task lists. Task
// mutations evict the owning team's entry; cache failures degrade to the
// underlying store and are never surfaced.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func teamTasksKey(teamID string) string { return "teamtasks:" + teamID }

func (c *Cache) FetchTeamTasks(ctx context.Context, teamID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, teamID); ok {
		return tasks, nil
	}
	tasks, err := c.base.FetchTeamTasks(ctx, teamID)
	if err != nil {
		return nil, err
	}
	c.storeTasks(ctx, teamID, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, in domain.CreateTaskInput) (*domain.CreateTaskResult, error) {
	res, err := c.base.CreateTask(ctx, in)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, in.TeamID)
	return res, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	task, err := c.base.UpdateTask(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, task.TeamID)
	return task, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) CreateTeam(ctx context.Context, team domain.Team) (bool, error) {
	return c.base.CreateTeam(ctx, team)
}

func (c *Cache) CreateOrganization(ctx context.Context, org domain.Organization) error {
	return c.base.CreateOrganization(ctx, org)
}

func (c *Cache) UpsertUser(ctx context.Context, user domain.User) error {
	return c.base.UpsertUser(ctx, user)
}

func (c *Cache) EnqueueEvents(ctx context.Context, events []domain.TaskEvent) error {
	return c.base.EnqueueEvents(ctx, events)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, teamID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, teamTasksKey(teamID)).Bytes()
	if err != nil {
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, teamID string, tasks []domain.Task) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	c.redis.Set(ctx, teamTasksKey(teamID), data, c.ttl)
}

func (c *Cache) evict(ctx context.Context, teamID string) {
	if c.redis == nil || teamID == "" {
		return
	}
	c.redis.Del(ctx, teamTasksKey(teamID))
}
