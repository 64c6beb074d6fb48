package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coursework/calendar/config"
	"github.com/coursework/calendar/middleware"
	"github.com/coursework/calendar/repositories/cache"
	"github.com/coursework/calendar/repositories/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "calendar_test",
			SSLMode:  "disable",
		},
		Auth: config.AuthConfig{
			Mode:              config.AuthModeStandard,
			Secret:            "test-secret",
			AccessTokenTTL:    config.Millis(15 * time.Minute),
			RefreshTokenTTL:   config.Millis(7 * 24 * time.Hour),
			DevDefaultSubject: config.DefaultDevSubject,
		},
		Redis: config.RedisConfig{CacheTTL: time.Minute},
	}
}

func mockFactory(t *testing.T) (*postgres.RepositoryFactory, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	return postgres.NewRepositoryFactoryFromDB(postgres.NewDBFromConn(db, logger), logger), mock
}

func TestNewDependenciesWithFactory(t *testing.T) {
	t.Run("standard mode installs the bearer authenticator", func(t *testing.T) {
		factory, mock := mockFactory(t)
		deps, err := NewDependenciesWithFactory(context.Background(), testConfig(t), factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Users)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.Codec)
		assert.NotNil(t, deps.Issuer)
		assert.NotNil(t, deps.Cookies)
		assert.NotNil(t, deps.AuthService)
		assert.NotNil(t, deps.AuthHandler)
		assert.NotNil(t, deps.HealthHandler)
		assert.Nil(t, deps.Redis)
		assert.Equal(t, deps.Users, deps.Directory)
		assert.False(t, deps.AuthService.DevBypass())

		assert.IsType(t, &middleware.AuthMiddleware{}, deps.Authenticator)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("dev bypass mode installs only the bypass authenticator", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.DevMode = true

		factory, mock := mockFactory(t)
		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.IsType(t, &middleware.DevBypassMiddleware{}, deps.Authenticator)
		assert.True(t, deps.AuthService.DevBypass())

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
	})

	t.Run("redis url puts the cache in front of the directory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Redis.URL = "redis://localhost:6379/0"

		factory, mock := mockFactory(t)
		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.NoError(t, err)

		require.NotNil(t, deps.Redis)
		assert.IsType(t, &cache.CachedDirectory{}, deps.Directory)

		mock.ExpectClose()
		require.NoError(t, deps.Close(context.Background()))
		assert.Nil(t, deps.Redis)
	})

	t.Run("invalid redis url", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Redis.URL = "://not-a-url"

		factory, _ := mockFactory(t)
		deps, err := NewDependenciesWithFactory(context.Background(), cfg, factory, zaptest.NewLogger(t))
		require.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize principal cache")
	})
}

func TestDependenciesReadiness(t *testing.T) {
	factory, mock := mockFactory(t)
	deps, err := NewDependenciesWithFactory(context.Background(), testConfig(t), factory, zaptest.NewLogger(t))
	require.NoError(t, err)

	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	rec := httptest.NewRecorder()
	deps.HealthHandler.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"healthy"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDependenciesClose(t *testing.T) {
	factory, mock := mockFactory(t)
	deps, err := NewDependenciesWithFactory(context.Background(), testConfig(t), factory, zaptest.NewLogger(t))
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, deps.Close(context.Background()))

	// Second close is a no-op
	assert.NoError(t, deps.Close(context.Background()))
}

func TestNewDependencies_DatabaseUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1

	deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to initialize database")
}
