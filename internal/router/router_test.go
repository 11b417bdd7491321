package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-records/internal/config"
	appointmenthandler "github.com/jwalitptl/clinic-records/internal/handler/appointment"
	authhandler "github.com/jwalitptl/clinic-records/internal/handler/auth"
	billinghandler "github.com/jwalitptl/clinic-records/internal/handler/billing"
	"github.com/jwalitptl/clinic-records/internal/handler/health"
	patienthandler "github.com/jwalitptl/clinic-records/internal/handler/patient"
	"github.com/jwalitptl/clinic-records/internal/middleware"
	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/repository/memory"
	"github.com/jwalitptl/clinic-records/internal/service/appointment"
	"github.com/jwalitptl/clinic-records/internal/service/auth"
	"github.com/jwalitptl/clinic-records/internal/service/billing"
	"github.com/jwalitptl/clinic-records/internal/service/patient"
	pkgauth "github.com/jwalitptl/clinic-records/pkg/auth"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/logger"
	"github.com/jwalitptl/clinic-records/pkg/metrics"
	"github.com/jwalitptl/clinic-records/pkg/security"
)

type testAPI struct {
	engine    *gin.Engine
	store     *memory.Store
	doctor    string
	secretary string
	patientID uuid.UUID
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators())

	log := logger.Nop()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", reg)
	store := memory.NewStore()

	hasher, err := security.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	authSvc := auth.NewService(memory.NewUserRepository(store),
		pkgauth.NewJWTService("test-secret", "clinic-records", time.Hour), hasher, log)
	billingSvc := billing.NewService(memory.NewBillingRepository(store), nil, log, m)
	appointmentSvc := appointment.NewService(memory.NewAppointmentRepository(store),
		appointment.Config{Policy: appointment.PolicyStrict}, log, m)

	r := NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		authhandler.NewHandler(authSvc),
		billinghandler.NewHandler(billingSvc),
		appointmenthandler.NewHandler(appointmentSvc),
		patienthandler.NewHandler(patient.NewService(memory.NewPatientRepository(store), log)),
		health.NewHandler(reg, nil),
		Config{
			Mode:      gin.TestMode,
			CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
			Namespace: "test",
			Registry:  reg,
			Logger:    log,
		},
	)
	r.Setup()

	api := &testAPI{engine: r.Engine(), store: store, patientID: uuid.New()}
	store.AddPatient(api.patientID)

	ctx := context.Background()
	_, err = authSvc.CreateUser(ctx, "Dr. Lina", "dr.lina@clinic.com", "drlina123", model.RoleDoctor)
	require.NoError(t, err)
	_, err = authSvc.CreateUser(ctx, "Sara", "sara@clinic.com", "sara12345", model.RoleSecretary)
	require.NoError(t, err)

	api.doctor = api.login(t, "dr.lina@clinic.com", "drlina123")
	api.secretary = api.login(t, "sara@clinic.com", "sara12345")
	return api
}

func (a *testAPI) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testAPI) login(t *testing.T, email, password string) string {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp model.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.AccessToken
}

type errorBody struct {
	Success bool `json:"success"`
	Error   struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	assert.False(t, body.Success)
	return body
}

func (a *testAPI) createBilling(t *testing.T, body gin.H) map[string]interface{} {
	t.Helper()
	w := a.do(t, http.MethodPost, "/api/v1/patients/"+a.patientID.String()+"/billing", a.secretary, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	return rec
}

func TestHealthAndAuth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = api.do(t, http.MethodGet, "/api/v1/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int(apperrors.ErrUnauthorized), decodeError(t, w).Error.Code)

	w = api.do(t, http.MethodGet, "/api/v1/appointments", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": "dr.lina@clinic.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/health/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func TestBillingFlow(t *testing.T) {
	api := newTestAPI(t)

	rec := api.createBilling(t, gin.H{
		"service":       "Vaccination",
		"date":          "2024-03-01",
		"cost":          150,
		"paid":          false,
		"unpaid_amount": "150",
	})
	assert.Equal(t, "150.00", rec["cost"])
	assert.Equal(t, "0.00", rec["paid_amount"])
	assert.Equal(t, false, rec["paid"])
	id := rec["id"].(string)

	w := api.do(t, http.MethodPost, "/api/v1/billing/"+id+"/payments", api.secretary, gin.H{"amount": "200"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, int(apperrors.ErrInvalidAmount), body.Error.Code)
	assert.Equal(t, "150.00", body.Error.Details["max_allowed"])
	assert.Equal(t, "payment cannot exceed $150.00", body.Error.Message)

	w = api.do(t, http.MethodPost, "/api/v1/billing/"+id+"/payments", api.secretary, gin.H{"amount": 50})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result struct {
		Record    map[string]interface{} `json:"record"`
		Completed bool                   `json:"completed"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Completed)
	assert.Equal(t, "50.00", result.Record["paid_amount"])
	assert.Equal(t, "100.00", result.Record["unpaid_amount"])

	w = api.do(t, http.MethodPost, "/api/v1/billing/"+id+"/mark-paid", api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"unpaid_amount":"0.00"`)

	w = api.do(t, http.MethodGet, "/api/v1/patients/"+api.patientID.String()+"/billing/summary", api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_paid":"150.00"`)

	w = api.do(t, http.MethodGet, "/api/v1/patients/"+api.patientID.String()+"/billing/export", api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))
}

func TestBillingValidation(t *testing.T) {
	api := newTestAPI(t)
	path := "/api/v1/patients/" + api.patientID.String() + "/billing"

	w := api.do(t, http.MethodPost, path, api.secretary, gin.H{"service": "Checkup"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, int(apperrors.ErrValidation), body.Error.Code)
	assert.ElementsMatch(t, []interface{}{"date", "cost", "unpaid_amount"}, body.Error.Details["fields"])

	w = api.do(t, http.MethodPost, path, api.secretary, gin.H{
		"service": "Checkup", "date": "2024-02-30", "cost": 10, "unpaid_amount": 10,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"date"}, decodeError(t, w).Error.Details["fields"])

	w = api.do(t, http.MethodPost, path, api.secretary, gin.H{
		"service": "Checkup", "date": "2024-02-01", "cost": "abc", "unpaid_amount": 10,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/patients/"+uuid.NewString()+"/billing", api.secretary, gin.H{
		"service": "Checkup", "date": "2024-02-01", "cost": 10, "unpaid_amount": 10,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodPut, "/api/v1/billing/"+uuid.NewString(), api.secretary, gin.H{
		"paid": true, "paid_amount": 10, "unpaid_amount": 0,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/billing/not-a-uuid", api.secretary, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterPatientThenBill(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/patients", api.secretary, gin.H{"full_name": "Omar", "date_of_birth": "2021-13-01"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []interface{}{"date_of_birth"}, decodeError(t, w).Error.Details["fields"])

	w = api.do(t, http.MethodPost, "/api/v1/patients", api.secretary, gin.H{"full_name": "Omar", "date_of_birth": "2021-11-01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p model.Patient
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))

	w = api.do(t, http.MethodGet, "/api/v1/patients/"+p.ID.String(), api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/patients/"+p.ID.String()+"/billing", api.secretary, gin.H{
		"service": "Screening", "date": "2024-04-01", "cost": 40, "unpaid_amount": 15,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"paid_amount":"25.00"`)
}

func TestDeleteRequiresDoctor(t *testing.T) {
	api := newTestAPI(t)
	rec := api.createBilling(t, gin.H{
		"service": "Checkup", "date": "2024-03-02", "cost": "80.00", "paid": true, "unpaid_amount": 0,
	})
	assert.Equal(t, true, rec["paid"])
	path := "/api/v1/billing/" + rec["id"].(string)

	w := api.do(t, http.MethodDelete, path, api.secretary, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodDelete, path, api.doctor, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodDelete, path, api.doctor, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAppointmentFlow(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(t, http.MethodPost, "/api/v1/appointments", api.secretary, gin.H{"patient_name": "Maya"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.ElementsMatch(t, []interface{}{"date", "time", "type"}, decodeError(t, w).Error.Details["fields"])

	w = api.do(t, http.MethodPost, "/api/v1/appointments", api.secretary, gin.H{
		"patient_name": "Maya", "date": "2024-05-10", "time": "09:30", "type": "Checkup", "reason": "fever",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var apt model.Appointment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &apt))
	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	path := "/api/v1/appointments/" + apt.ID.String() + "/status"

	w = api.do(t, http.MethodPut, path, api.secretary, gin.H{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodPut, path, api.secretary, gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, http.MethodPut, path, api.secretary, gin.H{"status": "scheduled"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, int(apperrors.ErrInvalidTransition), decodeError(t, w).Error.Code)

	w = api.do(t, http.MethodGet, "/api/v1/appointments?search=FEV", api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Appointment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.AppointmentStatusCompleted, list[0].Status)

	w = api.do(t, http.MethodGet, "/api/v1/appointments?status=bogus", api.secretary, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, http.MethodGet, "/api/v1/appointments/today", api.secretary, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}
