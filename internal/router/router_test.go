package router

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authHandler "github.com/jwalitptl/retina-api/internal/handler/auth"
	dashboardHandler "github.com/jwalitptl/retina-api/internal/handler/dashboard"
	healthHandler "github.com/jwalitptl/retina-api/internal/handler/health"
	notificationHandler "github.com/jwalitptl/retina-api/internal/handler/notification"
	patientHandler "github.com/jwalitptl/retina-api/internal/handler/patient"
	promHandler "github.com/jwalitptl/retina-api/internal/handler/prometheus"
	scanHandler "github.com/jwalitptl/retina-api/internal/handler/scan"
	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/repository/snapshot"
	"github.com/jwalitptl/retina-api/internal/service/classifier"
	"github.com/jwalitptl/retina-api/internal/service/notification"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/internal/service/screening"
	"github.com/jwalitptl/retina-api/internal/service/session"
	"github.com/jwalitptl/retina-api/internal/storage"
	"github.com/jwalitptl/retina-api/pkg/event"
	"github.com/jwalitptl/retina-api/pkg/logger"
	"github.com/jwalitptl/retina-api/pkg/metrics"
	"github.com/jwalitptl/retina-api/pkg/security"
	"github.com/jwalitptl/retina-api/pkg/validator"
)

type apiResponse struct {
	Status   string          `json:"status"`
	Message  string          `json:"message"`
	Data     json.RawMessage `json:"data"`
	Redirect string          `json:"redirect"`
	Code     int             `json:"-"`
}

func (r apiResponse) IsSuccess() bool {
	return r.Status == "success"
}

func (r apiResponse) decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.Data, v))
}

type testServer struct {
	engine *gin.Engine
	kv     storage.KV
}

func newTestServer(t *testing.T, kv storage.KV) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	repo := snapshot.New(kv, logger.Nop())
	bus := event.NewBus()

	sentinel, err := security.NewSentinel(security.NewBcryptHasher(bcrypt.MinCost), "password")
	require.NoError(t, err)
	sessions, err := session.NewService(ctx, repo, sentinel, bus, logger.Nop(), m, session.Config{})
	require.NoError(t, err)
	records, err := patient.NewService(ctx, repo, validator.New(), bus, logger.Nop(), m, patient.Config{})
	require.NoError(t, err)

	images, err := screening.NewImageStore(t.TempDir(), 1<<20)
	require.NoError(t, err)
	workflow := screening.NewWorkflow(records, images, classifier.NewRandom(classifier.Config{}, logger.Nop(), m), bus, logger.Nop())

	notifications := notification.NewService(bus, notification.Config{}, nil, logger.Nop())
	t.Cleanup(notifications.Close)

	r, err := NewRouter(
		middleware.NewAuthMiddleware(sessions),
		sessions,
		Handlers{
			Auth:         authHandler.NewHandler(sessions),
			Patient:      patientHandler.NewHandler(records),
			Scan:         scanHandler.NewHandler(records, workflow),
			Dashboard:    dashboardHandler.NewHandler(records),
			Notification: notificationHandler.NewHandler(notifications),
			Health:       healthHandler.NewHandler(kv),
			Metrics:      promHandler.New(reg, m),
		},
		RouterConfig{
			SizeLimit: middleware.DefaultSizeLimitConfig(),
			Security:  middleware.DefaultSecurityConfig(),
			UploadDir: images.Dir(),
		},
	)
	require.NoError(t, err)
	r.Setup()

	return &testServer{engine: r.Engine(), kv: kv}
}

func (s *testServer) do(t *testing.T, req *http.Request) (apiResponse, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	resp.Code = w.Code
	return resp, w
}

func (s *testServer) makeRequest(t *testing.T, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, _ := s.do(t, req)
	return resp
}

func (s *testServer) upload(t *testing.T, patientID string, image []byte) apiResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("patientId", patientID))
	if image != nil {
		part, err := mw.CreateFormFile("image", "eye.png")
		require.NoError(t, err)
		_, err = part.Write(image)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, _ := s.do(t, req)
	return resp
}

func (s *testServer) login(t *testing.T, email string) {
	t.Helper()
	resp := s.makeRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": "password",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Message)
}

func pngImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func TestUnauthenticatedRequestsRedirectToLogin(t *testing.T) {
	s := newTestServer(t, storage.NewMemory())

	for _, path := range []string{"/api/v1/dashboard", "/api/v1/patients", "/api/v1/scans/S001"} {
		resp := s.makeRequest(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.Code, path)
		assert.Equal(t, middleware.PathLogin, resp.Redirect, path)
	}
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, storage.NewMemory())

	bad := s.makeRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "doctor@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.Equal(t, "Invalid credentials", bad.Message)

	malformed := s.makeRequest(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, malformed.Code)

	s.login(t, "doctor@example.com")

	state := s.makeRequest(t, http.MethodGet, "/api/v1/auth/session", nil)
	var got struct {
		Authenticated bool `json:"authenticated"`
		User          struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	}
	state.decode(t, &got)
	assert.True(t, got.Authenticated)
	assert.Equal(t, "Dr. Smith", got.User.Name)
}

func TestScreeningFlow(t *testing.T) {
	s := newTestServer(t, storage.NewMemory())
	s.login(t, "doctor@example.com")

	// add a patient
	created := s.makeRequest(t, http.MethodPost, "/api/v1/patients", map[string]interface{}{
		"name": "Alice", "age": 30, "gender": "female", "phoneNumber": "555-0000",
	})
	require.Equal(t, http.StatusCreated, created.Code, created.Message)
	var newPatient struct {
		ID string `json:"id"`
	}
	created.decode(t, &newPatient)
	assert.Equal(t, "P003", newPatient.ID)

	invalid := s.makeRequest(t, http.MethodPost, "/api/v1/patients", map[string]interface{}{
		"name": "Bob", "age": 30, "gender": "robot", "phoneNumber": "1",
	})
	assert.Equal(t, http.StatusBadRequest, invalid.Code)

	search := s.makeRequest(t, http.MethodGet, "/api/v1/patients?search=ali", nil)
	var found []map[string]interface{}
	search.decode(t, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "P003", found[0]["id"])

	// upload and analyse
	missing := s.upload(t, "", pngImage(t))
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, screening.MsgMissingInput, missing.Message)

	uploaded := s.upload(t, "P003", pngImage(t))
	require.Equal(t, http.StatusCreated, uploaded.Code, uploaded.Message)
	var scan struct {
		ID        string `json:"id"`
		PatientID string `json:"patientId"`
		ImagePath string `json:"imagePath"`
		Stage     int    `json:"stage"`
	}
	uploaded.decode(t, &scan)
	assert.Equal(t, "S002", scan.ID)
	assert.Equal(t, "P003", scan.PatientID)
	assert.True(t, scan.Stage >= 0 && scan.Stage <= 4)

	detail := s.makeRequest(t, http.MethodGet, "/api/v1/scans/S002", nil)
	require.Equal(t, http.StatusOK, detail.Code)
	var scanDetail struct {
		Patient struct {
			Name string `json:"name"`
		} `json:"patient"`
		Stage struct {
			Name string `json:"name"`
		} `json:"stage"`
	}
	detail.decode(t, &scanDetail)
	assert.Equal(t, "Alice", scanDetail.Patient.Name)
	assert.NotEmpty(t, scanDetail.Stage.Name)

	_, w := s.do(t, httptest.NewRequest(http.MethodGet, scan.ImagePath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pngImage(t), w.Body.Bytes())

	// patient detail and dashboard
	patientDetail := s.makeRequest(t, http.MethodGet, "/api/v1/patients/P003", nil)
	var pd struct {
		ScanResults  []map[string]interface{} `json:"scanResults"`
		Distribution []map[string]interface{} `json:"distribution"`
	}
	patientDetail.decode(t, &pd)
	assert.Len(t, pd.ScanResults, 1)
	assert.Len(t, pd.Distribution, 5)

	dash := s.makeRequest(t, http.MethodGet, "/api/v1/dashboard", nil)
	var summary struct {
		PatientCount int `json:"patientCount"`
		ScanCount    int `json:"scanCount"`
	}
	dash.decode(t, &summary)
	assert.Equal(t, 3, summary.PatientCount)
	assert.Equal(t, 2, summary.ScanCount)

	// cascade delete
	deleted := s.makeRequest(t, http.MethodDelete, "/api/v1/patients/P001", nil)
	assert.Equal(t, http.StatusNoContent, deleted.Code)

	gone := s.makeRequest(t, http.MethodGet, "/api/v1/scans/S001", nil)
	assert.Equal(t, http.StatusNotFound, gone.Code)
	assert.Equal(t, scanHandler.MsgScanNotFound, gone.Message)

	// notifications, newest first
	list := s.makeRequest(t, http.MethodGet, "/api/v1/notifications", nil)
	var notes []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	list.decode(t, &notes)
	require.NotEmpty(t, notes)
	assert.Equal(t, "Patient Removed", notes[0].Title)
	assert.Equal(t, "Patient John Doe has been removed from your records", notes[0].Description)
}

func TestDoctorsOnlySeeTheirPatients(t *testing.T) {
	s := newTestServer(t, storage.NewMemory())

	rejected := s.makeRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name": "Pat", "email": "pat@example.com", "password": "password", "role": "patient",
	})
	assert.Equal(t, http.StatusForbidden, rejected.Code)
	assert.Equal(t, session.MsgDoctorsOnly, rejected.Message)

	registered := s.makeRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "password", "role": "doctor",
	})
	require.Equal(t, http.StatusCreated, registered.Code, registered.Message)

	dup := s.makeRequest(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "password", "role": "doctor",
	})
	assert.Equal(t, http.StatusConflict, dup.Code)

	var mine []interface{}
	s.makeRequest(t, http.MethodGet, "/api/v1/patients", nil).decode(t, &mine)
	assert.Empty(t, mine)

	other := s.makeRequest(t, http.MethodGet, "/api/v1/patients/P001", nil)
	assert.Equal(t, http.StatusNotFound, other.Code)

	upload := s.upload(t, "P001", pngImage(t))
	assert.Equal(t, http.StatusNotFound, upload.Code)

	logout := s.makeRequest(t, http.MethodPost, "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, logout.Code)

	after := s.makeRequest(t, http.MethodGet, "/api/v1/patients", nil)
	assert.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestPatientRoleIsSentToDashboard(t *testing.T) {
	kv := storage.NewMemory()
	require.NoError(t, kv.Set(context.Background(), snapshot.KeyUsers,
		`[{"id":"1","email":"doctor@example.com","name":"Dr. Smith","role":"doctor"},
		  {"id":"7","email":"pat@example.com","name":"Pat","role":"patient"}]`))
	s := newTestServer(t, kv)
	s.login(t, "pat@example.com")

	dash := s.makeRequest(t, http.MethodGet, "/api/v1/dashboard", nil)
	assert.Equal(t, http.StatusOK, dash.Code)

	for _, path := range []string{"/api/v1/patients", "/api/v1/patients/P001"} {
		resp := s.makeRequest(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusForbidden, resp.Code, path)
		assert.Equal(t, middleware.PathDashboard, resp.Redirect, path)
	}

	upload := s.upload(t, "P001", pngImage(t))
	assert.Equal(t, http.StatusForbidden, upload.Code)

	scan := s.makeRequest(t, http.MethodGet, "/api/v1/scans/S001", nil)
	assert.Equal(t, http.StatusOK, scan.Code)
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t, storage.NewMemory())

	stages := s.makeRequest(t, http.MethodGet, "/api/v1/stages", nil)
	var table []map[string]interface{}
	stages.decode(t, &table)
	assert.Len(t, table, 5)

	view := s.makeRequest(t, http.MethodGet, "/api/v1/views/resolve?path=/patients/P001", nil)
	var v View
	view.decode(t, &v)
	assert.Equal(t, "patient-detail", v.Name)
	assert.Equal(t, DecisionRedirectLogin, v.Decision)

	noPath := s.makeRequest(t, http.MethodGet, "/api/v1/views/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, noPath.Code)

	_, live := s.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code)
	_, ready := s.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, ready.Code)
	assert.Contains(t, ready.Body.String(), "memory")

	_, w := s.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
	assert.Contains(t, w.Body.String(), "test_store_patients")
}

func TestReadinessReportsClosedStorage(t *testing.T) {
	kv := storage.NewMemory()
	s := newTestServer(t, kv)
	require.NoError(t, kv.Close())

	_, w := s.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
