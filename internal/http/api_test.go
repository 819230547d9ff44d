package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"update-user-service/internal/domain"
	"update-user-service/internal/events"
	"update-user-service/internal/metrics"
	"update-user-service/internal/repository"
	"update-user-service/internal/repository/sqlite"
	"update-user-service/internal/service"
)

type userServiceMock struct {
	mock.Mock
}

func (m *userServiceMock) UpdateUser(ctx context.Context, username string, update domain.UserUpdate) (domain.UpdateResult, error) {
	args := m.Called(ctx, username, update)
	return args.Get(0).(domain.UpdateResult), args.Error(1)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, eventType domain.EventType, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, domain.Event{EventType: eventType, Data: payload})
	return nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newRouter(users service.UserService, reg *prometheus.Registry) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var rec *metrics.Recorder
	var gatherer prometheus.Gatherer
	if reg != nil {
		var err error
		if rec, err = metrics.New(reg); err != nil {
			panic(err)
		}
		gatherer = reg
	}
	NewHandler(users, quietLogger(), rec, gatherer).RegisterRoutes(router)
	return router
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLiveness(t *testing.T) {
	router := newRouter(&userServiceMock{}, nil)

	w := doRequest(router, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Update User Service Running", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestUpdateUser_OK(t *testing.T) {
	users := &userServiceMock{}
	users.On("UpdateUser", mock.Anything, "alice", mock.MatchedBy(func(u domain.UserUpdate) bool {
		return u.Password == "hunter2" && u.FirstName != nil && *u.FirstName == "Ann" && u.LastName == nil
	})).Return(domain.UpdateResult{Attributes: map[string]any{"firstName": "Ann"}}, nil)

	router := newRouter(users, nil)
	w := doRequest(router, http.MethodPut, "/users/alice", `{"firstName":"Ann","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "User updated", body["message"])
	assert.Equal(t, map[string]any{"Attributes": map[string]any{"firstName": "Ann"}}, body["result"])
	users.AssertExpectations(t)
}

func TestUpdateUser_ServiceErrorIs500(t *testing.T) {
	users := &userServiceMock{}
	users.On("UpdateUser", mock.Anything, "alice", mock.Anything).
		Return(domain.UpdateResult{}, fmt.Errorf("%w: throttled", repository.ErrStorage))

	router := newRouter(users, nil)
	w := doRequest(router, http.MethodPut, "/users/alice", `{"password":"hunter2"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Error updating user", body.Message)
	assert.Contains(t, body.Error, "throttled")
}

func TestUpdateUser_MalformedBodyIs500(t *testing.T) {
	users := &userServiceMock{}
	router := newRouter(users, nil)

	w := doRequest(router, http.MethodPut, "/users/alice", `{"password":`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	users.AssertNotCalled(t, "UpdateUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestCORSPreflight(t *testing.T) {
	router := newRouter(&userServiceMock{}, nil)

	w := doRequest(router, http.MethodOptions, "/users/alice", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "OPTIONS")
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	router := newRouter(&userServiceMock{}, reg)

	doRequest(router, http.MethodGet, "/", "")
	w := doRequest(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `usersvc_http_requests_total{method="GET",route="/",status="200"} 1`)
}

// The remaining tests run the real workflow against a local sqlite store.

func newStack(t *testing.T, pub events.Publisher) (*gin.Engine, *sqlite.UserRepository) {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := sqlite.NewUserRepository(db)
	require.NoError(t, repo.Init(context.Background()))

	svc := service.NewUserService(repo, pub, quietLogger(), nil)
	return newRouter(svc, nil), repo
}

func TestScenario_UpdateStoresHashAndEmitsEvent(t *testing.T) {
	pub := &capturePublisher{}
	router, repo := newStack(t, pub)

	w := doRequest(router, http.MethodPut, "/users/alice",
		`{"firstName":"Ann","lastName":"Lee","email":"a@x.com","password":"hunter2"}`)
	require.Equal(t, http.StatusOK, w.Code)

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "Ann", *user.FirstName)
	assert.NotEqual(t, "hunter2", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("hunter2")))

	require.Len(t, pub.events, 1)
	assert.Equal(t, domain.EventUserUpdated, pub.events[0].EventType)
	data := pub.events[0].Data.(domain.User)
	assert.Equal(t, "alice", data.Username)
	assert.Equal(t, "Ann", *data.FirstName)
	assert.Equal(t, user.Password, data.Password)
}

func TestScenario_PublisherNotReadyStillOK(t *testing.T) {
	pub := &capturePublisher{err: events.ErrNotReady}
	router, _ := newStack(t, pub)

	w := doRequest(router, http.MethodPut, "/users/alice", `{"password":"hunter2"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestScenario_MissingPasswordIs500(t *testing.T) {
	pub := &capturePublisher{}
	router, repo := newStack(t, pub)

	w := doRequest(router, http.MethodPut, "/users/alice", `{"firstName":"Ann"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	_, err := repo.GetByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, pub.events)
}

func TestScenario_LongPasswordAccepted(t *testing.T) {
	pub := &capturePublisher{}
	router, repo := newStack(t, pub)

	password := strings.Repeat("a", 80)
	w := doRequest(router, http.MethodPut, "/users/alice", fmt.Sprintf(`{"password":%q}`, password))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	user, err := repo.GetByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, service.VerifyPassword(user.Password, password))
	assert.Len(t, pub.events, 1)
}
