package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type rejectAuth struct{}

func (rejectAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errMissingAuthorization
}

func newTestLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(nopWriter{})
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func seedStore(t *testing.T) *storage.Memory {
	t.Helper()
	mem := storage.NewMemory(nil)
	mem.SeedTeam(domain.Team{ID: "t1", Name: "Alpha"})
	mem.SeedUser(domain.User{ID: "u1", Organizations: map[string][]string{"org": {"t1"}}})
	mem.SeedUser(domain.User{ID: "u2", Organizations: map[string][]string{"org": {"t2"}}})
	return mem
}

func newAPI(t *testing.T, store Store) *echo.Echo {
	t.Helper()
	e := echo.New()
	Register(e, store, mockAuth{}, nil, newTestLogger())
	return e
}

func doJSON(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderAuthorization, "Bearer x.y.z")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateTaskHappyPath(t *testing.T) {
	mem := seedStore(t)
	e := newAPI(t, mem)

	rec := doJSON(e, http.MethodPost, "/api/tasks",
		`{"teamId":"t1","name":"  Write   tests  ","assigneesIds":["u1","u2","ghost"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp createTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Task.ID != "t1-task-1" {
		t.Fatalf("unexpected id %q", resp.Task.ID)
	}
	if resp.Task.Name != "Write tests" {
		t.Fatalf("name not sanitized: %q", resp.Task.Name)
	}
	if resp.Task.Status != domain.StatusToDo {
		t.Fatalf("unexpected status %q", resp.Task.Status)
	}
	if len(resp.Warnings) != 2 {
		t.Fatalf("expected warnings for u2 and ghost, got %v", resp.Warnings)
	}

	stored, err := mem.GetTask(context.Background(), "t1-task-1")
	if err != nil {
		t.Fatalf("stored task: %v", err)
	}
	if len(stored.AssigneesIDs) != 3 {
		t.Fatalf("task must keep skipped assignees: %v", stored.AssigneesIDs)
	}
}

func TestCreateTaskMissingTeamIsBusinessFailure(t *testing.T) {
	mem := storage.NewMemory(nil)
	e := newAPI(t, mem)

	rec := doJSON(e, http.MethodPost, "/api/tasks", `{"teamId":"ghost","name":"n"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if events := mem.Events(); len(events) != 0 {
		t.Fatalf("no events expected, got %v", events)
	}
}

func TestCreateTaskValidationBeforeStore(t *testing.T) {
	e := newAPI(t, seedStore(t))

	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"teamId":"t1"}`},
		{"past deadline", `{"teamId":"t1","name":"n","deadline":"2000-01-01"}`},
		{"bad deadline", `{"teamId":"t1","name":"n","deadline":"whenever"}`},
		{"not json", `{"teamId":`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(e, http.MethodPost, "/api/tasks", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateTaskPartialApplication(t *testing.T) {
	mem := seedStore(t)
	e := newAPI(t, mem)
	ctx := context.Background()

	if _, err := mem.CreateTask(ctx, domain.CreateTaskInput{TeamID: "t1", Name: "n", Description: "orig"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := mem.GetTask(ctx, "t1-task-1")

	// An invalid status leaves the record untouched.
	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1-task-1", `{"status":"Blocked","description":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	after, _ := mem.GetTask(ctx, "t1-task-1")
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("record changed on rejected update:\nbefore %+v\nafter  %+v", before, after)
	}

	// A description-only body changes description and nothing else.
	rec = doJSON(e, http.MethodPatch, "/api/tasks/t1-task-1", `{"description":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	updated, _ := mem.GetTask(ctx, "t1-task-1")
	if updated.Description != "x" {
		t.Fatalf("description = %q", updated.Description)
	}
	if updated.Name != before.Name || updated.Status != before.Status || updated.Deadline != before.Deadline {
		t.Fatalf("unrelated fields changed: %+v", updated)
	}
}

func TestUpdateTaskAcceptsPastDeadline(t *testing.T) {
	mem := seedStore(t)
	e := newAPI(t, mem)
	if _, err := mem.CreateTask(context.Background(), domain.CreateTaskInput{TeamID: "t1", Name: "n"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1-task-1", `{"deadline":"2000-01-01"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("updates accept past deadlines, got %d: %s", rec.Code, rec.Body.String())
	}
	task, _ := mem.GetTask(context.Background(), "t1-task-1")
	if task.Deadline != "2000-01-01T00:00:00Z" {
		t.Fatalf("deadline = %q", task.Deadline)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	e := newAPI(t, seedStore(t))
	rec := doJSON(e, http.MethodPatch, "/api/tasks/nope", `{"description":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetTeamTasks(t *testing.T) {
	mem := seedStore(t)
	e := newAPI(t, mem)
	if _, err := mem.CreateTask(context.Background(), domain.CreateTaskInput{TeamID: "t1", Name: "a"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := doJSON(e, http.MethodGet, "/api/tasks?teamId=t1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Name != "a" {
		t.Fatalf("unexpected tasks: %+v", resp.Tasks)
	}

	rec = doJSON(e, http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing teamId should be 400, got %d", rec.Code)
	}

	// An unknown team is 404, never an empty board.
	rec = doJSON(e, http.MethodGet, "/api/tasks?teamId=ghost", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown team should be 404, got %d", rec.Code)
	}
}

func TestCreateTeamIdempotent(t *testing.T) {
	e := newAPI(t, storage.NewMemory(nil))

	body := `{"organizationId":"org1","teamName":"alpha"}`
	rec := doJSON(e, http.MethodPost, "/api/teams", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("first create: %d", rec.Code)
	}
	rec = doJSON(e, http.MethodPost, "/api/teams", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("existing team is still a 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already exists") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateOrganizationDuplicate(t *testing.T) {
	e := newAPI(t, storage.NewMemory(nil))

	body := `{"organizationName":"acme","userId":"u1"}`
	if rec := doJSON(e, http.MethodPost, "/api/organizations", body); rec.Code != http.StatusOK {
		t.Fatalf("first create: %d", rec.Code)
	}
	if rec := doJSON(e, http.MethodPost, "/api/organizations", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate must be 400, got %d", rec.Code)
	}
}

func TestUnauthorizedRequests(t *testing.T) {
	e := echo.New()
	Register(e, storage.NewMemory(nil), rejectAuth{}, nil, newTestLogger())

	for _, target := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tasks?teamId=t1"},
		{http.MethodPost, "/api/tasks"},
		{http.MethodPatch, "/api/tasks/t1-task-1"},
		{http.MethodPost, "/api/teams"},
		{http.MethodPost, "/api/organizations"},
	} {
		req := httptest.NewRequest(target.method, target.path, strings.NewReader("{}"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", target.method, target.path, rec.Code)
		}
	}
}

type failingStore struct {
	*storage.Memory
}

func (f failingStore) UpdateTask(ctx context.Context, id string, upd domain.TaskUpdate) (*domain.Task, error) {
	return nil, errors.New("connection reset")
}

func TestUpdateTaskStoreFailureHidesDetail(t *testing.T) {
	e := newAPI(t, failingStore{seedStore(t)})
	rec := doJSON(e, http.MethodPatch, "/api/tasks/t1-task-1", `{"description":"x"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}
