package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lostboard/apiserver/config"
	"github.com/lostboard/apiserver/internal/services/servicestest"
	"github.com/lostboard/apiserver/internal/storage"
	"github.com/lostboard/apiserver/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	handler   http.Handler
	users     *servicestest.Users
	items     *servicestest.Items
	objects   *servicestest.Objects
	publisher *servicestest.Publisher
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:   config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost},
		Storage: config.StorageConfig{
			PublicPrefix:   "/uploads",
			MaxUploadBytes: 1 << 20,
		},
		Broker: config.BrokerConfig{EventChannel: "lostboard.items"},
	}

	users := servicestest.NewUsers()
	env := &testEnv{
		users:     users,
		items:     servicestest.NewItems(users),
		objects:   servicestest.NewObjects(),
		publisher: &servicestest.Publisher{},
	}
	env.handler = NewRouter(cfg, Dependencies{
		Users:   env.users,
		Items:   env.items,
		Objects: env.objects,
		Events:  env.publisher,
	}, zap.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type formFile struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, method, path, token string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

type messageBody struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
	Error   string `json:"error"`
}

type loginBody struct {
	Token string           `json:"token"`
	User  types.PublicUser `json:"user"`
}

func (e *testEnv) registerAndLogin(t *testing.T, username string) loginBody {
	t.Helper()
	email := username + "@example.com"
	rec := e.do(t, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"username": username, "email": email, "password": "pw123456",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	if got := decode[messageBody](t, rec).Message; got != "User registered successfully" {
		t.Fatalf("unexpected register message %q", got)
	}

	rec = e.do(t, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{
		"email": email, "password": "pw123456",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	login := decode[loginBody](t, rec)
	if login.Token == "" || login.User.Username != username {
		t.Fatalf("unexpected login body %+v", login)
	}
	return login
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decode[map[string]string](t, rec)
	if body["status"] != "ok" {
		t.Fatalf("unexpected status %q", body["status"])
	}
	if _, err := time.Parse(time.RFC3339, body["timestamp"]); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
}

func TestRegisterAndLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	env.registerAndLogin(t, "alice")

	cases := []struct {
		name    string
		path    string
		payload map[string]string
		message string
	}{
		{name: "missing fields", path: "/auth/register", payload: map[string]string{"username": "bob"}, message: "username, email and password are required"},
		{name: "duplicate email", path: "/auth/register", payload: map[string]string{"username": "bob", "email": "alice@example.com", "password": "x"}, message: "email already exists"},
		{name: "duplicate username", path: "/auth/register", payload: map[string]string{"username": "alice", "email": "other@example.com", "password": "x"}, message: "username already exists"},
		{name: "unknown email", path: "/auth/login", payload: map[string]string{"email": "nobody@example.com", "password": "x"}, message: "user not found"},
		{name: "wrong password", path: "/auth/login", payload: map[string]string{"email": "alice@example.com", "password": "nope"}, message: "wrong password"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, jsonRequest(t, http.MethodPost, tc.path, tc.payload))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if got := decode[messageBody](t, rec).Error; got != tc.message {
				t.Fatalf("expected %q, got %q", tc.message, got)
			}
		})
	}
	if env.users.Count() != 1 {
		t.Fatalf("expected a single stored user, got %d", env.users.Count())
	}

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d", rec.Code)
	}
}

func TestItemLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerAndLogin(t, "alice")
	bob := env.registerAndLogin(t, "bob")

	fields := map[string]string{
		"name":        "Blue umbrella",
		"description": "Left near the door",
		"location":    "Library",
		"type":        "lost",
	}

	rec := env.do(t, multipartRequest(t, http.MethodPost, "/items", "", fields))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	spoofed := map[string]string{"user_id": fmt.Sprint(bob.User.ID)}
	for k, v := range fields {
		spoofed[k] = v
	}
	rec = env.do(t, multipartRequest(t, http.MethodPost, "/items", alice.Token, spoofed))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for mismatched user_id, got %d", rec.Code)
	}

	rec = env.do(t, multipartRequest(t, http.MethodPost, "/items", alice.Token, fields,
		formFile{field: "image", name: "umbrella.png", data: servicestest.PNG}))
	if rec.Code != http.StatusOK {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	created := decode[messageBody](t, rec)
	if created.Message != "Item added successfully" || created.ID == 0 {
		t.Fatalf("unexpected create body %+v", created)
	}

	found := map[string]string{"name": "Keys", "description": "Three keys", "location": "Gym", "type": "found"}
	rec = env.do(t, multipartRequest(t, http.MethodPost, "/items", bob.Token, found))
	if rec.Code != http.StatusOK {
		t.Fatalf("create found: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/items?type=lost", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	lost := decode[[]types.Item](t, rec)
	if len(lost) != 1 || lost[0].ID != created.ID {
		t.Fatalf("unexpected lost list %+v", lost)
	}
	if lost[0].Username == nil || *lost[0].Username != "alice" {
		t.Fatalf("expected contact details of the owner, got %+v", lost[0].Contact)
	}
	if lost[0].ImageURL == nil || !strings.HasPrefix(*lost[0].ImageURL, "/uploads/items/") {
		t.Fatalf("unexpected image url %v", lost[0].ImageURL)
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, *lost[0].ImageURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("serve upload: status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("unexpected upload content type %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), servicestest.PNG) {
		t.Fatal("served upload differs from the stored bytes")
	}

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/items", nil))
	if all := decode[[]types.Item](t, rec); len(all) != 2 || all[0].Type != types.ItemFound {
		t.Fatalf("expected newest first over both types, got %+v", all)
	}

	itemPath := fmt.Sprintf("/items/%d", created.ID)
	rec = env.do(t, httptest.NewRequest(http.MethodGet, itemPath, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get item: status %d", rec.Code)
	}

	del := httptest.NewRequest(http.MethodDelete, itemPath, nil)
	rec = env.do(t, del)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	del = httptest.NewRequest(http.MethodDelete, itemPath, nil)
	del.Header.Set("Authorization", "Bearer "+bob.Token)
	rec = env.do(t, del)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d", rec.Code)
	}

	del = httptest.NewRequest(http.MethodDelete, itemPath, nil)
	del.Header.Set("Authorization", "Bearer "+alice.Token)
	rec = env.do(t, del)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner delete: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decode[messageBody](t, rec).Message; got != "Item deleted successfully" {
		t.Fatalf("unexpected delete message %q", got)
	}
	if keys := env.objects.Keys(); len(keys) != 0 {
		t.Fatalf("expected image removed, still stored %v", keys)
	}

	del = httptest.NewRequest(http.MethodDelete, itemPath, nil)
	del.Header.Set("Authorization", "Bearer "+alice.Token)
	rec = env.do(t, del)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rec.Code)
	}

	events := env.publisher.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[2].Event != types.EventItemDeleted || events[2].ItemID != created.ID {
		t.Fatalf("unexpected delete event %+v", events[2])
	}
}

func TestCreateItemValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerAndLogin(t, "alice")

	cases := []struct {
		name   string
		fields map[string]string
		files  []formFile
	}{
		{name: "missing name", fields: map[string]string{"description": "d", "location": "l", "type": "lost"}},
		{name: "bad type", fields: map[string]string{"name": "n", "description": "d", "location": "l", "type": "stolen"}},
		{name: "not an image", fields: map[string]string{"name": "n", "description": "d", "location": "l", "type": "lost"},
			files: []formFile{{field: "image", name: "notes.txt", data: []byte("hello")}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, multipartRequest(t, http.MethodPost, "/items", alice.Token, tc.fields, tc.files...))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
			}
		})
	}
	if env.items.Count() != 0 {
		t.Fatalf("expected no stored items, got %d", env.items.Count())
	}
}

func TestProfileUpdate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.registerAndLogin(t, "alice")
	env.registerAndLogin(t, "bob")

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/users/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	update := func(fields map[string]string, files ...formFile) *httptest.ResponseRecorder {
		return env.do(t, multipartRequest(t, http.MethodPut, "/users/me", alice.Token, fields, files...))
	}

	rec = update(map[string]string{"username": "alice", "email": "alice@example.com", "contact_number": "call me"})
	if rec.Code != http.StatusBadRequest || decode[messageBody](t, rec).Error != "invalid contact number format" {
		t.Fatalf("expected contact format rejection, got %d", rec.Code)
	}

	rec = update(map[string]string{"username": "bob", "email": "alice@example.com"})
	if rec.Code != http.StatusBadRequest || decode[messageBody](t, rec).Error != "username already exists" {
		t.Fatalf("expected username conflict, got %d", rec.Code)
	}

	rec = update(map[string]string{"username": "alice2", "email": "alice@example.com", "contact_number": "+1 (555) 010-9999"},
		formFile{field: "profile_pic", name: "me.png", data: servicestest.PNG})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	user := decode[types.User](t, rec)
	if user.Username != "alice2" || user.ContactNumber == nil || *user.ContactNumber != "+1 (555) 010-9999" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.ProfilePic == nil || !strings.HasPrefix(*user.ProfilePic, "/uploads/profiles/") {
		t.Fatalf("unexpected profile pic %v", user.ProfilePic)
	}

	// Omitting contact_number keeps it; an urlencoded body is accepted too.
	form := url.Values{"username": {"alice2"}, "email": {"alice@example.com"}}
	req := httptest.NewRequest(http.MethodPut, "/users/me", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("urlencoded update: status %d body %s", rec.Code, rec.Body.String())
	}
	if kept := decode[types.User](t, rec); kept.ContactNumber == nil || kept.ProfilePic == nil {
		t.Fatalf("expected contact and picture kept, got %+v", kept)
	}

	req = httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+alice.Token)
	rec = env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	raw, _ := io.ReadAll(rec.Body)
	if bytes.Contains(raw, []byte("password")) {
		t.Fatalf("password hash leaked: %s", raw)
	}
}

func TestUploadsMissing(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/uploads/items/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestAuthRateLimit(t *testing.T) {
	cfg := config.Config{
		Auth:    config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: bcrypt.MinCost, RateLimit: 0.01, RateBurst: 2},
		Storage: config.StorageConfig{PublicPrefix: "/uploads", MaxUploadBytes: 1 << 20},
	}
	users := servicestest.NewUsers()
	handler := NewRouter(cfg, Dependencies{
		Users:   users,
		Items:   servicestest.NewItems(users),
		Objects: servicestest.NewObjects(),
	}, zap.NewNop())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.c", "password": "x"}))
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusBadRequest || codes[1] != http.StatusBadRequest || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected other routes unaffected, got %d", rec.Code)
	}
}

func TestDefaultConfigServesEveryRegistration(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg := config.LoadConfig()
	cfg.Auth.BcryptCost = bcrypt.MinCost

	users := servicestest.NewUsers()
	handler := NewRouter(cfg, Dependencies{
		Users:   users,
		Items:   servicestest.NewItems(users),
		Objects: servicestest.NewObjects(),
	}, zap.NewNop())

	for i := 0; i < 8; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/auth/register", map[string]string{
			"username": fmt.Sprintf("user%d", i),
			"email":    fmt.Sprintf("user%d@example.com", i),
			"password": "pw123456",
		}))
		if rec.Code != http.StatusOK {
			t.Fatalf("registration %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if users.Count() != 8 {
		t.Fatalf("expected 8 users, got %d", users.Count())
	}
}

type closeCountingObjects struct {
	*servicestest.Objects
	closed int
}

func (o *closeCountingObjects) Close() error {
	o.closed++
	return nil
}

func TestShutdownClosesStorage(t *testing.T) {
	backend := &closeCountingObjects{Objects: servicestest.NewObjects()}
	srv := &Server{
		httpServer: &http.Server{},
		objects:    storage.NewStorage(backend),
		logger:     zap.NewNop(),
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if backend.closed != 1 {
		t.Fatalf("expected storage closed once, got %d", backend.closed)
	}
}
