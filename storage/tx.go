package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

const (
	// maxTxAttempts bounds transparent retries of the creation transaction
	// after a write-write conflict on the team record.
	maxTxAttempts  = 4
	txRetryInitial = 25 * time.Millisecond
)

// CreateTask runs the multi-record creation. Reads go straight to the tables
// with their ETags captured; writes are staged and applied at commit, gated on
// the team record's ETag. A concurrent creation against the same team moves
// the team's ETag, the conditional update fails with 412, and the whole
// transaction reruns against fresh state, so two creations can never allocate
// the same task number.
func (s *Storage) CreateTask(ctx context.Context, in domain.CreateTaskInput) (*domain.CreateTaskResult, error) {
	backoff := txRetryInitial
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx := newTableTx(s)
		res, err := domain.CreateTask(ctx, tx, in, s.logger)
		if err != nil {
			return nil, err
		}
		if err := tx.commit(ctx); err == nil {
			return res, nil
		} else if !errors.Is(err, domain.ErrConflict) {
			return nil, err
		} else {
			lastErr = err
		}
		if s.logger != nil {
			s.logger.WithFields(log.Fields{
				"team":    in.TeamID,
				"attempt": attempt,
			}).Warn("task creation conflict, retrying")
		}
		select {
		case <-time.After(backoff + time.Duration(rand.Int63n(int64(backoff)))):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

// tableTx implements domain.Tx over the storage tables. Reads are live,
// writes are buffered until commit.
type tableTx struct {
	s *Storage

	teamETag azcore.ETag
	team     *domain.Team

	users map[string]*txUser

	pendingTask *domain.Task
	pendingTeam *domain.Team
}

type txUser struct {
	user  domain.User
	etag  azcore.ETag
	dirty bool
}

func newTableTx(s *Storage) *tableTx {
	return &tableTx{s: s, users: map[string]*txUser{}}
}

func (tx *tableTx) GetTeam(ctx context.Context, id string) (*domain.Team, error) {
	resp, err := tx.s.teamTable.GetEntity(ctx, collectionTeams, id, nil)
	if err != nil {
		return nil, mapReadError(err, "team", id)
	}
	team, err := decodeTeamEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	tx.teamETag = resp.ETag
	tx.team = &team
	return &team, nil
}

func (tx *tableTx) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if cached, ok := tx.users[id]; ok {
		return &cached.user, nil
	}
	resp, err := tx.s.userTable.GetEntity(ctx, collectionUsers, id, nil)
	if err != nil {
		return nil, mapReadError(err, "user", id)
	}
	user, err := decodeUserEntity(resp.Value)
	if err != nil {
		return nil, err
	}
	tx.users[id] = &txUser{user: user, etag: resp.ETag}
	return &user, nil
}

func (tx *tableTx) AppendUserTask(ctx context.Context, userID, taskID string) error {
	cached, ok := tx.users[userID]
	if !ok {
		return fmt.Errorf("append before read for user %q", userID)
	}
	for _, existing := range cached.user.Tasks {
		if existing == taskID {
			return nil
		}
	}
	cached.user.Tasks = append(cached.user.Tasks, taskID)
	cached.dirty = true
	return nil
}

func (tx *tableTx) PutTask(ctx context.Context, t domain.Task) error {
	tx.pendingTask = &t
	return nil
}

func (tx *tableTx) UpdateTeam(ctx context.Context, t domain.Team) error {
	tx.pendingTeam = &t
	return nil
}

// commit applies the staged writes. Table storage cannot batch across tables,
// so the team record's conditional update is the commit gate: it runs first,
// and a lost race on the counter aborts the commit before any other write.
// User back-reference merges run after the task insert and stay best-effort;
// a concurrent edit of a user record costs that user's back-reference, not
// the transaction.
func (tx *tableTx) commit(ctx context.Context) error {
	if tx.pendingTeam == nil || tx.pendingTask == nil {
		return errors.New("incomplete creation transaction")
	}

	teamData, err := encodeTeamEntity(*tx.pendingTeam)
	if err != nil {
		return err
	}
	etag := tx.teamETag
	_, err = tx.s.teamTable.UpdateEntity(ctx, teamData, &aztables.UpdateEntityOptions{
		IfMatch:    &etag,
		UpdateMode: aztables.UpdateModeReplace,
	})
	if err != nil {
		return mapReadError(err, "team", tx.pendingTeam.ID)
	}

	taskData, err := encodeTaskEntity(*tx.pendingTask)
	if err != nil {
		return err
	}
	if _, err := tx.s.taskTable.AddEntity(ctx, taskData, nil); err != nil {
		return mapReadError(err, "task", tx.pendingTask.ID)
	}

	for id, cached := range tx.users {
		if !cached.dirty {
			continue
		}
		userData, err := encodeUserEntity(cached.user)
		if err != nil {
			return err
		}
		userETag := cached.etag
		_, err = tx.s.userTable.UpdateEntity(ctx, userData, &aztables.UpdateEntityOptions{
			IfMatch:    &userETag,
			UpdateMode: aztables.UpdateModeMerge,
		})
		if err != nil && tx.s.logger != nil {
			tx.s.logger.WithFields(log.Fields{
				"user": id,
				"task": tx.pendingTask.ID,
			}).WithError(err).Warn("skipping assignee back-reference write")
		}
	}
	return nil
}
