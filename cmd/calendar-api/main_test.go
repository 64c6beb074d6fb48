package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coursework/calendar/app"
	"github.com/coursework/calendar/config"
	"github.com/coursework/calendar/models"
	"github.com/coursework/calendar/repositories/postgres"
	"github.com/coursework/calendar/routes"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:            "127.0.0.1",
			Port:            0,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			Mode:              config.AuthModeStandard,
			Secret:            "main-test-secret",
			AccessTokenTTL:    config.Millis(15 * time.Minute),
			RefreshTokenTTL:   config.Millis(7 * 24 * time.Hour),
			DevDefaultSubject: config.DefaultDevSubject,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:*"}},
	}
}

func setupRouter(t *testing.T, cfg *config.Config) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	factory := postgres.NewRepositoryFactoryFromDB(postgres.NewDBFromConn(db, logger), logger)

	deps, err := app.NewDependenciesWithFactory(context.Background(), cfg, factory, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		mock.ExpectClose()
		_ = deps.Close(context.Background())
	})

	return routes.SetupRoutes(deps), mock
}

func userRows(u *models.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "username", "email", "password_hash", "role", "created_at"}).
		AddRow(u.ID.String(), u.Username, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt)
}

func do(router http.Handler, method, path, body string, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRoutes_Operational(t *testing.T) {
	router, _ := setupRouter(t, testConfig())

	t.Run("liveness", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
		assert.NotEmpty(t, rec.Header().Get("Content-Type"))
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/events", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"not_found"`)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/auth/login", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"method_not_allowed"`)
	})

	t.Run("me requires authentication", func(t *testing.T) {
		rec := do(router, http.MethodGet, "/api/auth/me", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("cors preflight allows credentials", func(t *testing.T) {
		rec := do(router, http.MethodOptions, "/api/auth/refresh", "", func(r *http.Request) {
			r.Header.Set("Origin", "http://localhost:5173")
			r.Header.Set("Access-Control-Request-Method", http.MethodPost)
		})
		assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("register in standard mode validates first", func(t *testing.T) {
		rec := do(router, http.MethodPost, "/api/auth/register", `{"email":"bad"}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRoutes_LoginThenMe(t *testing.T) {
	router, mock := setupRouter(t, testConfig())

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	user := models.NewUser("alice@example.com", "alice", string(hash), models.RoleUser)
	user.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(user))

	rec := do(router, http.MethodPost, "/api/auth/login",
		`{"email":"Alice@Example.com","password":"correct horse"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login struct {
		AccessToken string `json:"accessToken"`
		UserID      string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.NotEmpty(t, login.AccessToken)
	assert.Equal(t, user.ID.String(), login.UserID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refreshToken", cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
		WithArgs("alice@example.com").
		WillReturnRows(userRows(user))

	rec = do(router, http.MethodGet, "/api/auth/me", "", func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+login.AccessToken)
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email":"alice@example.com"`)
	assert.Contains(t, rec.Body.String(), `"role":"USER"`)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutes_Register(t *testing.T) {
	router, mock := setupRouter(t, testConfig())
	body := `{"email":"New@Example.com","username":"newbie","password":"longenough"}`

	t.Run("creates the account with an empty body", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)")).
			WithArgs("new@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		rec := do(router, http.MethodPost, "/api/auth/register", body, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(t, rec.Body.String())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("concurrent insert of the same email is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)")).
			WithArgs("new@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})
		mock.ExpectRollback()

		rec := do(router, http.MethodPost, "/api/auth/register", body, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.NotContains(t, rec.Body.String(), "users_email_key")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRoutes_DevBypass(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Mode = config.AuthModeDevBypass
	router, mock := setupRouter(t, cfg)

	admin := models.NewUser(config.DefaultDevSubject, "admin", "!", models.RoleAdmin)

	t.Run("me resolves to the default principal", func(t *testing.T) {
		// once by the bypass middleware, once by the handler
		for i := 0; i < 2; i++ {
			mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
				WithArgs(config.DefaultDevSubject).
				WillReturnRows(userRows(admin))
		}

		rec := do(router, http.MethodGet, "/api/auth/me", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"role":"ADMIN"`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("registration is disabled", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1")).
			WithArgs(config.DefaultDevSubject).
			WillReturnRows(userRows(admin))

		rec := do(router, http.MethodPost, "/api/auth/register",
			`{"email":"new@example.com","username":"newbie","password":"longenough"}`, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestServe_GracefulShutdown(t *testing.T) {
	cfg := testConfig()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := newServer(cfg.Server, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, srv, ln, cfg.Server, zap.NewNop()) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestNewServer(t *testing.T) {
	cfg := testConfig().Server
	cfg.Port = 9090

	srv := newServer(cfg, http.NotFoundHandler())
	assert.Equal(t, "127.0.0.1:9090", srv.Addr)
	assert.Equal(t, cfg.ReadTimeout, srv.ReadTimeout)
	assert.Equal(t, cfg.WriteTimeout, srv.WriteTimeout)
}
