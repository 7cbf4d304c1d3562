package api

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	svix "github.com/svix/svix-webhooks/go"

	"taskboard-api/domain"
)

// Webhook header names required by the signature scheme. A request missing
// any of them fails closed.
const (
	headerWebhookID        = "svix-id"
	headerWebhookTimestamp = "svix-timestamp"
	headerWebhookSignature = "svix-signature"
)

// UserWebhook turns signed "user.created" events from the identity provider
// into user records.
type UserWebhook struct {
	wh      *svix.Webhook
	deduper Deduper
	logger  *log.Logger
}

// NewUserWebhook builds the webhook verifier from the endpoint secret. The
// deduper is optional; without it redelivered events are reapplied (the
// insert is idempotent, so this only costs a write).
func NewUserWebhook(secret string, deduper Deduper, logger *log.Logger) (*UserWebhook, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return &UserWebhook{wh: wh, deduper: deduper, logger: logger}, nil
}

type identityEvent struct {
	Type string       `json:"type"`
	Data identityUser `json:"data"`
}

type identityUser struct {
	ID             string          `json:"id"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	EmailAddresses []identityEmail `json:"email_addresses"`
	PrimaryEmailID string          `json:"primary_email_address_id"`
}

type identityEmail struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

// primaryEmail resolves the user's primary address, falling back to the first
// listed one.
func (u identityUser) primaryEmail() string {
	if u.PrimaryEmailID != "" {
		for _, e := range u.EmailAddresses {
			if e.ID == u.PrimaryEmailID {
				return e.EmailAddress
			}
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// Handle verifies the delivery signature, filters for user.created and
// inserts the user record.
func (w *UserWebhook) Handle(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		headers := c.Request().Header

		deliveryID := headers.Get(headerWebhookID)
		if deliveryID == "" || headers.Get(headerWebhookTimestamp) == "" || headers.Get(headerWebhookSignature) == "" {
			return c.String(http.StatusBadRequest, "missing required webhook headers")
		}

		payload, err := io.ReadAll(io.LimitReader(c.Request().Body, requestBodyMaxSize))
		if err != nil {
			return c.String(http.StatusBadRequest, "unreadable body")
		}
		if err := w.wh.Verify(payload, headers); err != nil {
			return c.String(http.StatusBadRequest, "webhook verification failed")
		}

		var evt identityEvent
		if err := sonic.Unmarshal(payload, &evt); err != nil {
			return c.String(http.StatusBadRequest, "invalid payload")
		}
		if evt.Type != "user.created" {
			return c.String(http.StatusBadRequest, "not a user creation event")
		}

		user := evt.Data
		email := user.primaryEmail()
		if user.ID == "" || user.FirstName == "" || user.LastName == "" || email == "" {
			return c.String(http.StatusBadRequest, "user has insufficient data")
		}

		if w.deduper != nil {
			fresh, err := w.deduper.Add(ctx, deliveryID)
			if err != nil {
				w.logger.WithError(err).Warn("webhook dedupe unavailable, applying event")
			} else if !fresh {
				return c.JSON(http.StatusOK, messageResponse{Message: "delivery already processed"})
			}
		}

		record := domain.User{
			ID:            domain.CleanIdentifier(user.ID),
			Email:         email,
			FirstName:     user.FirstName,
			LastName:      user.LastName,
			Tasks:         []string{},
			Organizations: map[string][]string{},
		}
		if err := store.UpsertUser(ctx, record); err != nil {
			if w.deduper != nil {
				if rerr := w.deduper.Remove(ctx, deliveryID); rerr != nil {
					w.logger.WithError(rerr).Error("webhook dedupe rollback failed")
				}
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to create user")
		}

		w.logger.WithFields(log.Fields{"user": record.ID}).Info("user created from identity event")
		return c.JSON(http.StatusOK, messageResponse{Message: "user created"})
	}
}
