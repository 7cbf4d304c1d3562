package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

type mapDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func newMapDeduper() *mapDeduper {
	return &mapDeduper{seen: map[string]bool{}}
}

func (d *mapDeduper) Add(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *mapDeduper) Remove(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

type upsertRecorder struct {
	*storage.Memory
	mu    sync.Mutex
	users []domain.User
	fail  bool
}

func (r *upsertRecorder) UpsertUser(ctx context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("table unavailable")
	}
	r.users = append(r.users, user)
	return r.Memory.UpsertUser(ctx, user)
}

type webhookFixture struct {
	e       *echo.Echo
	secret  string
	store   *upsertRecorder
	deduper *mapDeduper
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("webhook-test-signing-key"))
	deduper := newMapDeduper()
	wh, err := NewUserWebhook(secret, deduper, newTestLogger())
	if err != nil {
		t.Fatalf("build webhook: %v", err)
	}
	store := &upsertRecorder{Memory: storage.NewMemory(nil)}
	e := echo.New()
	e.POST("/api/webhooks/users", wh.Handle(store))
	return &webhookFixture{e: e, secret: secret, store: store, deduper: deduper}
}

const userCreatedPayload = `{
	"type": "user.created",
	"data": {
		"id": "user_29w",
		"first_name": "Ada",
		"last_name": "Lovelace",
		"primary_email_address_id": "em_2",
		"email_addresses": [
			{"id": "em_1", "email_address": "old@example.com"},
			{"id": "em_2", "email_address": "ada@example.com"}
		]
	}
}`

func (f *webhookFixture) deliver(t *testing.T, deliveryID, payload string) *httptest.ResponseRecorder {
	t.Helper()
	wh, err := NewUserWebhook(f.secret, nil, nil)
	if err != nil {
		t.Fatalf("build signer: %v", err)
	}
	now := time.Now()
	sig, err := wh.wh.Sign(deliveryID, now, []byte(payload))
	if err != nil {
		t.Fatalf("sign payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/users", strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(headerWebhookID, deliveryID)
	req.Header.Set(headerWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
	req.Header.Set(headerWebhookSignature, sig)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestWebhookCreatesUser(t *testing.T) {
	f := newWebhookFixture(t)

	rec := f.deliver(t, "msg_1", userCreatedPayload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.store.users) != 1 {
		t.Fatalf("expected one upsert, got %d", len(f.store.users))
	}
	user := f.store.users[0]
	if user.ID != "user_29w" || user.Email != "ada@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.FirstName != "Ada" || user.LastName != "Lovelace" {
		t.Fatalf("names not carried over: %+v", user)
	}
}

func TestWebhookMissingHeaders(t *testing.T) {
	f := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/users", strings.NewReader(userCreatedPayload))
	req.Header.Set(headerWebhookID, "msg_1")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/users", strings.NewReader(userCreatedPayload))
	req.Header.Set(headerWebhookID, "msg_1")
	req.Header.Set(headerWebhookTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(headerWebhookSignature, "v1,Zm9yZ2VkLXNpZ25hdHVyZQ==")
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(f.store.users) != 0 {
		t.Fatal("unverified delivery must not touch the store")
	}
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.deliver(t, "msg_1", `{"type":"user.deleted","data":{"id":"user_29w"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(f.store.users) != 0 {
		t.Fatal("no upsert expected")
	}
}

func TestWebhookInsufficientData(t *testing.T) {
	f := newWebhookFixture(t)
	rec := f.deliver(t, "msg_1", `{"type":"user.created","data":{"id":"user_29w","first_name":"Ada"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWebhookDeduplicatesDeliveries(t *testing.T) {
	f := newWebhookFixture(t)

	if rec := f.deliver(t, "msg_1", userCreatedPayload); rec.Code != http.StatusOK {
		t.Fatalf("first delivery: %d", rec.Code)
	}
	rec := f.deliver(t, "msg_1", userCreatedPayload)
	if rec.Code != http.StatusOK {
		t.Fatalf("redelivery: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already processed") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if len(f.store.users) != 1 {
		t.Fatalf("redelivery must not reapply, got %d upserts", len(f.store.users))
	}

	// A different delivery id goes through.
	if rec := f.deliver(t, "msg_2", userCreatedPayload); rec.Code != http.StatusOK {
		t.Fatalf("second delivery: %d", rec.Code)
	}
	if len(f.store.users) != 2 {
		t.Fatalf("expected two upserts, got %d", len(f.store.users))
	}
}

func TestWebhookStoreFailureReleasesDedupe(t *testing.T) {
	f := newWebhookFixture(t)
	f.store.fail = true

	rec := f.deliver(t, "msg_1", userCreatedPayload)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	// The provider's retry of the same delivery must be applied once the
	// store recovers.
	f.store.fail = false
	if rec := f.deliver(t, "msg_1", userCreatedPayload); rec.Code != http.StatusOK {
		t.Fatalf("retry after failure: %d, %s", rec.Code, rec.Body.String())
	}
	if len(f.store.users) != 1 {
		t.Fatalf("expected one successful upsert, got %d", len(f.store.users))
	}
}

func TestWebhookDedupeOutageStillApplies(t *testing.T) {
	f := newWebhookFixture(t)
	f.deduper.err = errors.New("redis down")

	rec := f.deliver(t, "msg_1", userCreatedPayload)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if len(f.store.users) != 1 {
		t.Fatalf("expected upsert despite dedupe outage, got %d", len(f.store.users))
	}
}
