package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NicoHurtado/cursia-sub002/api"
	"github.com/NicoHurtado/cursia-sub002/database/dbtest"
	"github.com/NicoHurtado/cursia-sub002/handlers"
	"github.com/NicoHurtado/cursia-sub002/model"
	"github.com/NicoHurtado/cursia-sub002/services"
	"github.com/NicoHurtado/cursia-sub002/services/contentstore"
	"github.com/NicoHurtado/cursia-sub002/services/wompi"
	"github.com/NicoHurtado/cursia-sub002/utils/auth"
	"github.com/NicoHurtado/cursia-sub002/utils/cache"
	"github.com/NicoHurtado/cursia-sub002/utils/logger"
	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testCronSecret   = "cron-secret"
	testEventsSecret = "events-secret"
)

// stubStore satisfies database.Storage over a test database and lets a test
// make the health check fail.
type stubStore struct {
	db        *gorm.DB
	healthErr error
}

func (s *stubStore) Init() error                         { return nil }
func (s *stubStore) Close() error                        { return nil }
func (s *stubStore) HealthCheck(_ context.Context) error { return s.healthErr }
func (s *stubStore) GetDB() *gorm.DB                     { return s.db }

type testServer struct {
	app   *fiber.App
	db    *gorm.DB
	store *stubStore
	jwt   *auth.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Nop()
	db := dbtest.New(t)
	store := &stubStore{db: db}

	mr := miniredis.RunT(t)
	rc := cache.FromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	queue := services.NewQueueService(rc, log)
	content := contentstore.NewMemoryStore()
	reconciler := services.NewSubscriptionReconciler(db, testEventsSecret, log)
	jwt := auth.NewJWTManager(auth.JWTConfig{Secret: "test-secret", Issuer: "cursia"})

	server := api.NewAPIServer(":0", log)
	SetupRoutes(server.GetEngine(), &Deps{
		Store:             store,
		Log:               log,
		JWT:               jwt,
		Redis:             rc,
		Integrations:      handlers.Integrations{Redis: true, ContentStore: content.Backend()},
		AllowedOrigins:    "http://localhost:3000",
		RateLimitRequests: 1000,
		CronSecret:        testCronSecret,
		Courses:           services.NewCourseService(db, queue, content, log),
		Status:            services.NewCourseStatusService(db, queue),
		Progress:          services.NewProgressService(db),
		Community:         services.NewCommunityService(db, log),
		Certificates:      services.NewCertificateService(db),
		Subscriptions:     services.NewSubscriptionService(db, nil, reconciler, "", log),
		Reconciler:        reconciler,
	})

	return &testServer{app: server.GetEngine(), db: db, store: store, jwt: jwt}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(raw)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (s *testServer) user(t *testing.T, plan model.Plan) (*model.User, map[string]string) {
	t.Helper()
	var n int64
	s.db.Model(&model.User{}).Count(&n)
	u := &model.User{
		Email:        fmt.Sprintf("user%d@cursia.test", n+1),
		PasswordHash: "x",
		Name:         "Usuario",
		Role:         model.RoleUser,
		Plan:         plan,
	}
	require.NoError(t, s.db.Create(u).Error)

	pair, err := s.jwt.IssuePair(u.ID, u.Email, u.Role, u.TokenVersion)
	require.NoError(t, err)
	return u, map[string]string{"Authorization": "Bearer " + pair.AccessToken}
}

func (s *testServer) course(t *testing.T, ownerID uint, status model.CourseStatus, public bool) *model.Course {
	t.Helper()
	c := &model.Course{
		UserID:       ownerID,
		Prompt:       "Aprender Python",
		Title:        "Python para todos",
		Status:       status,
		TotalModules: 2,
		IsPublic:     public,
	}
	require.NoError(t, s.db.Create(c).Error)
	return c
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)

	var body struct {
		Status       string                `json:"status"`
		Integrations handlers.Integrations `json:"integrations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Integrations.ContentStore)
	assert.True(t, body.Integrations.Redis)
}

func TestHealthReturns503WhenDatabaseIsDown(t *testing.T) {
	s := newTestServer(t)
	s.store.healthErr = errors.New("connection refused")

	status, env := s.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "Database unavailable", env.Error.Message)

	var body struct {
		Status   string `json:"status"`
		Database string `json:"database"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "disconnected", body.Database)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRegisterThenProfile(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodPost, "/api/auth/register", map[string]interface{}{
		"email":    "ana@cursia.test",
		"password": "aprender123",
		"name":     "Ana",
	}, nil)
	require.Equal(t, http.StatusCreated, status, env.Error)

	var session struct {
		User struct {
			Email string `json:"email"`
			Plan  string `json:"plan"`
		} `json:"user"`
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &session))
	assert.Equal(t, "ana@cursia.test", session.User.Email)
	assert.Equal(t, string(model.PlanFree), session.User.Plan)
	require.NotEmpty(t, session.AccessToken)

	status, _ = s.do(t, http.MethodGet, "/api/auth/me", nil,
		map[string]string{"Authorization": "Bearer " + session.AccessToken})
	assert.Equal(t, http.StatusOK, status)

	status, env = s.do(t, http.MethodPost, "/api/auth/register", map[string]interface{}{
		"email":    "ana@cursia.test",
		"password": "aprender123",
		"name":     "Ana",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

func TestCoursesRequireSession(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/courses", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestGenerationStatusWhileFirstModuleIsGenerating(t *testing.T) {
	s := newTestServer(t)
	owner, headers := s.user(t, model.PlanFree)
	course := s.course(t, owner.ID, model.StatusGeneratingModule1, false)
	require.NoError(t, s.db.Create(&model.Module{CourseID: course.ID, ModuleOrder: 1, Title: "Intro"}).Error)

	status, env := s.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d/generation-status", course.ID), nil, headers)
	require.Equal(t, http.StatusOK, status, env.Error)

	var report services.GenerationStatus
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 50, report.ProgressPercentage)
	assert.False(t, report.IsFullyGenerated)
	assert.Equal(t, 0, report.ModulesWithContent)

	_, strangerHeaders := s.user(t, model.PlanFree)
	status, _ = s.do(t, http.MethodGet, fmt.Sprintf("/api/courses/%d/generation-status", course.ID), nil, strangerHeaders)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOwnerCannotRateOwnCourse(t *testing.T) {
	s := newTestServer(t)
	owner, headers := s.user(t, model.PlanExperto)
	course := s.course(t, owner.ID, model.StatusComplete, true)

	status, env := s.do(t, http.MethodPost, "/api/community/rate",
		map[string]interface{}{"courseId": course.ID, "rating": 5}, headers)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "no puedes calificar tu propio curso", env.Error.Message)

	var n int64
	s.db.Model(&model.CourseRating{}).Count(&n)
	assert.Zero(t, n)
}

func TestRatingRequiresPlan(t *testing.T) {
	s := newTestServer(t)
	owner, _ := s.user(t, model.PlanMaestro)
	course := s.course(t, owner.ID, model.StatusComplete, true)
	_, freeHeaders := s.user(t, model.PlanFree)

	status, _ := s.do(t, http.MethodPost, "/api/community/rate",
		map[string]interface{}{"courseId": course.ID, "rating": 4}, freeHeaders)
	assert.Equal(t, http.StatusForbidden, status)

	_, expertHeaders := s.user(t, model.PlanExperto)
	status, env := s.do(t, http.MethodPost, "/api/community/rate",
		map[string]interface{}{"courseId": course.ID, "rating": 4}, expertHeaders)
	assert.Equal(t, http.StatusOK, status, env.Error)
}

func TestWompiWebhookRejectsBadSignature(t *testing.T) {
	s := newTestServer(t)
	body := []byte(`{"event":"transaction.updated","data":{"transaction":{"id":"t1","status":"APPROVED","reference":"x"}},"timestamp":1}`)

	status, env := s.do(t, http.MethodPost, "/api/webhooks/wompi", body,
		map[string]string{wompi.SignatureHeader: "deadbeef"})
	assert.Equal(t, http.StatusInternalServerError, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_SIGNATURE", env.Error.Code)

	var events int64
	s.db.Model(&model.WebhookEvent{}).Count(&events)
	assert.Zero(t, events)
}

func TestWompiWebhookAppliesApprovedPayment(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.user(t, model.PlanFree)
	sub := &model.Subscription{
		UserID:    user.ID,
		Plan:      model.PlanExperto,
		Status:    model.SubscriptionInactive,
		Reference: services.PaymentReference(user.ID, model.PlanExperto, time.Now()),
	}
	require.NoError(t, s.db.Create(sub).Error)

	body, err := json.Marshal(map[string]interface{}{
		"event": wompi.EventTransactionUpdated,
		"data": map[string]interface{}{
			"transaction": map[string]interface{}{
				"id":              "txn-1",
				"status":          wompi.TransactionApproved,
				"reference":       sub.Reference,
				"amount_in_cents": 4990000,
				"currency":        "COP",
			},
		},
		"timestamp": time.Now().Unix(),
	})
	require.NoError(t, err)

	status, env := s.do(t, http.MethodPost, "/api/webhooks/wompi", body,
		map[string]string{wompi.SignatureHeader: wompi.Sign(testEventsSecret, body)})
	require.Equal(t, http.StatusOK, status, env.Error)

	require.NoError(t, s.db.First(user, user.ID).Error)
	assert.Equal(t, model.PlanExperto, user.Plan)
}

func TestCronExpireSubscriptions(t *testing.T) {
	s := newTestServer(t)
	user, _ := s.user(t, model.PlanAprendiz)
	yesterday := time.Now().Add(-24 * time.Hour)
	require.NoError(t, s.db.Create(&model.Subscription{
		UserID:          user.ID,
		Plan:            model.PlanAprendiz,
		Status:          model.SubscriptionCancelled,
		Reference:       "ref-cancelled",
		NextPaymentDate: &yesterday,
	}).Error)

	status, _ := s.do(t, http.MethodGet, "/api/cron/expire-subscriptions", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/cron/expire-subscriptions", nil,
		map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := s.do(t, http.MethodGet, "/api/cron/expire-subscriptions", nil,
		map[string]string{"Authorization": "Bearer " + testCronSecret})
	require.Equal(t, http.StatusOK, status, env.Error)

	var result struct {
		Downgraded int64 `json:"downgraded"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, int64(1), result.Downgraded)

	require.NoError(t, s.db.First(user, user.ID).Error)
	assert.Equal(t, model.PlanFree, user.Plan)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	_, headers := s.user(t, model.PlanMaestro)

	status, _ := s.do(t, http.MethodGet, "/api/admin/stats", nil, headers)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestCertificateVerifyIsPublic(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(t, http.MethodGet, "/api/certificates/00000000-0000-0000-0000-000000000000/verify", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}
