package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/coursework-api/internal/handler"
	"github.com/noah-isme/coursework-api/internal/models"
	"github.com/noah-isme/coursework-api/internal/service"
	"github.com/noah-isme/coursework-api/pkg/config"
)

func testRouter(t *testing.T) (*gin.Engine, *service.IdentityService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{Env: config.EnvProduction, APIPrefix: "/api/v1"}
	identity := service.NewIdentityService(service.IdentityConfig{Secret: "test-secret", Issuer: "coursework"})
	metrics := service.NewMetricsService()
	r := newRouter(cfg, zap.NewNop(), routerDeps{
		identity:    identity,
		metrics:     metrics,
		lessons:     handler.NewLessonHandler(nil),
		assignments: handler.NewAssignmentHandler(nil),
		submissions: handler.NewSubmissionHandler(nil),
		enrollments: handler.NewEnrollmentHandler(nil),
		progress:    handler.NewProgressHandler(nil),
		media:       handler.NewMediaHandler(nil),
		storage:     handler.NewStorageHandler(nil, nil),
		system:      handler.NewMetricsHandler(metrics, nil),
	})
	return r, identity
}

func TestRouterPublicEndpoints(t *testing.T) {
	r, _ := testRouter(t)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouterRequiresBearerToken(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/assignments/a-1", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterRejectsStudentOnStaffRoute(t *testing.T) {
	r, identity := testRouter(t)
	token, err := identity.IssueToken(models.Actor{UserID: "stu-1", Role: models.RoleStudent}, time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/assignments/a-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterSweepIsAdminOnly(t *testing.T) {
	r, identity := testRouter(t)
	token, err := identity.IssueToken(models.Actor{UserID: "t-1", Role: models.RoleTeacher}, time.Minute)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/storage/sweep", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouterHidesDocsInProduction(t *testing.T) {
	r, _ := testRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/docs/index.html", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
