package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, webhooks *UserWebhook, logger *log.Logger) {
	publisher := newEventPublisher(store, logger)

	e.GET("/api/tasks", getTeamTasks(store, auth, logger))
	e.POST("/api/tasks", createTask(store, auth, publisher))
	e.PATCH("/api/tasks/:taskId", updateTask(store, auth, publisher))
	e.POST("/api/teams", createTeam(store, auth))
	e.POST("/api/organizations", createOrganization(store, auth))
	if webhooks != nil {
		e.POST("/api/webhooks/users", webhooks.Handle(store))
	}
	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, dst any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// httpStatusFor maps the domain failure taxonomy onto HTTP statuses.
// notFoundStatus differs per route: a missing team during creation is a
// business-rule failure (400), a missing task on update is a 404.
func httpStatusFor(err error, notFoundStatus int) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return notFoundStatus
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func failureMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		// Store internals never leak to callers.
		return "unexpected failure"
	}
	return err.Error()
}

func getTeamTasks(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		teamID := domain.CleanIdentifier(c.QueryParam("teamId"))
		if teamID == "" {
			metrics.SetErrorStage("missing_team_id")
			err = c.String(http.StatusBadRequest, "teamId is required")
			return err
		}

		fetchStart := time.Now()
		tasks, fetchErr := store.FetchTeamTasks(ctx, teamID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			status := httpStatusFor(fetchErr, http.StatusNotFound)
			if status == http.StatusInternalServerError {
				metrics.SetErrorStage("storage")
				c.Logger().Error(fetchErr)
			} else {
				metrics.SetErrorStage("team_not_found")
			}
			err = c.String(status, failureMessage(fetchErr, status))
			return err
		}
		metrics.SetTasksReturned(len(tasks))
		err = c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func createTask(store Store, auth Authenticator, publisher *eventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var in domain.CreateTaskInput
		if err := decodeBody(c, &in); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		// Validation happens entirely before the store is touched.
		validated, err := domain.ValidateCreateTask(in, time.Now())
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		res, err := store.CreateTask(ctx, validated)
		if err != nil {
			// Creation treats a missing team as a business-rule failure.
			status := httpStatusFor(err, http.StatusBadRequest)
			if status == http.StatusInternalServerError {
				c.Logger().Error(err)
			}
			return c.String(status, failureMessage(err, status))
		}

		publisher.publishCreated(res.Task)

		resp := createTaskResponse{Task: res.Task}
		for _, outcome := range res.Assignees {
			if outcome.Skip != domain.SkipNone {
				resp.Warnings = append(resp.Warnings, assigneeWarning{
					UserID: outcome.UserID,
					Reason: string(outcome.Skip),
				})
			}
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func updateTask(store Store, auth Authenticator, publisher *eventPublisher) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		taskID := domain.CleanIdentifier(c.Param("taskId"))
		if taskID == "" {
			return c.String(http.StatusBadRequest, "missing task id")
		}

		var raw domain.RawTaskUpdate
		if err := decodeBody(c, &raw); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		upd, err := domain.ValidateTaskUpdate(raw)
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}

		task, err := store.UpdateTask(ctx, taskID, upd)
		if err != nil {
			status := httpStatusFor(err, http.StatusNotFound)
			if status == http.StatusInternalServerError {
				c.Logger().Error(err)
			}
			return c.String(status, failureMessage(err, status))
		}

		publisher.publishUpdated(*task)

		return c.JSON(http.StatusOK, messageResponse{Message: "task updated"})
	}
}

type createTeamRequest struct {
	OrganizationID string `json:"organizationId"`
	TeamName       string `json:"teamName"`
}

func createTeam(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTeamRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		name := domain.CleanText(req.TeamName, 100)
		if domain.CleanIdentifier(req.OrganizationID) == "" || name == "" {
			return c.String(http.StatusBadRequest, "organizationId and teamName are required")
		}

		team := domain.Team{
			ID:       domain.TeamID(req.OrganizationID, req.TeamName),
			Name:     name,
			TasksIDs: []string{},
		}
		created, err := store.CreateTeam(ctx, team)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusBadRequest, "team creation failed")
		}
		if !created {
			return c.JSON(http.StatusOK, messageResponse{Message: "team already exists"})
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "team created"})
	}
}

type createOrganizationRequest struct {
	OrganizationName string `json:"organizationName"`
	UserID           string `json:"userId"`
}

func createOrganization(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createOrganizationRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		name := domain.CleanText(req.OrganizationName, 100)
		userID := domain.CleanIdentifier(req.UserID)
		if name == "" || userID == "" {
			return c.String(http.StatusBadRequest, "organizationName and userId are required")
		}

		org := domain.Organization{
			ID:           domain.OrganizationID(userID, name),
			Name:         name,
			MembersRoles: map[string]string{userID: domain.RoleOwner},
			TeamsIDs:     []string{},
		}
		if err := store.CreateOrganization(ctx, org); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return c.String(http.StatusBadRequest, "this organization already exists")
			}
			c.Logger().Error(err)
			return c.String(http.StatusBadRequest, "organization creation failed")
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "organization created"})
	}
}
