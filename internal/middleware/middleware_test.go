package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coursework-api/internal/models"
	appErrors "github.com/noah-isme/coursework-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return v.claims, nil
}

type observerStub struct {
	paths []string
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	o.paths = append(o.paths, path)
}

func newRouter(role models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	claims := &models.JWTClaims{UserID: "u1", Role: role}
	r.GET("/staff", JWT(validatorStub{claims: claims}), RequireStaff(), func(c *gin.Context) {
		got, ok := Claims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, got.UserID)
	})
	return r
}

func serve(r http.Handler, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/staff", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAndRoles(t *testing.T) {
	teacherRouter := newRouter(models.RoleTeacher)

	w := serve(teacherRouter, "Bearer good")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, serve(teacherRouter, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(teacherRouter, "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(teacherRouter, "Bearer bad").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(teacherRouter, "Bearer ").Code)

	studentRouter := newRouter(models.RoleStudent)
	assert.Equal(t, http.StatusForbidden, serve(studentRouter, "Bearer good").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	obs := &observerStub{}
	r := gin.New()
	r.Use(Metrics(obs))
	r.GET("/assignments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/assignments/42", "/nowhere"} {
		req, _ := http.NewRequest(http.MethodGet, p, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, []string{"/assignments/:id", unmatchedRoute}, obs.paths)
}
