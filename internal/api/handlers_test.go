package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/pragyanlabs/receiptops/internal/models"
	"github.com/pragyanlabs/receiptops/internal/service"
	"github.com/pragyanlabs/receiptops/internal/store"
	"github.com/pragyanlabs/receiptops/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sesame"

type fakeIntake struct {
	resp *models.SubmitReceiptResponse
	err  error
	got  *models.SubmitReceiptRequest
}

func (f *fakeIntake) ProcessSubmission(ctx context.Context, req models.SubmitReceiptRequest) (*models.SubmitReceiptResponse, error) {
	f.got = &req
	return f.resp, f.err
}

type fakeDirectory struct {
	claim     *models.ReceiptClaim
	claims    []models.ReceiptClaim
	getErr    error
	listErr   error
	updateErr error
	updatedTo models.Status
}

func (f *fakeDirectory) GetClaim(ctx context.Context, id string) (*models.ReceiptClaim, error) {
	return f.claim, f.getErr
}

func (f *fakeDirectory) ListClaims(ctx context.Context, limit int) ([]models.ReceiptClaim, error) {
	return f.claims, f.listErr
}

func (f *fakeDirectory) UpdateStatus(ctx context.Context, id string, next models.Status) (*models.ReceiptClaim, error) {
	f.updatedTo = next
	return f.claim, f.updateErr
}

func newRouter(intake IntakeProcessor, claims ClaimDirectory) *mux.Router {
	h := NewHandler(intake, claims)
	r := mux.NewRouter()
	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/receipts", h.SubmitReceiptHandler).Methods("POST", "OPTIONS")

	admin := apiV1.NewRoute().Subrouter()
	admin.Use(RequireSecret(testSecret))
	admin.HandleFunc("/receipts", h.ListClaimsHandler).Methods("GET")
	admin.HandleFunc("/receipts/{id}", h.GetClaimHandler).Methods("GET")
	admin.HandleFunc("/receipts/{id}/status", h.UpdateStatusHandler).Methods("PATCH")
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestSubmitReceiptCreated(t *testing.T) {
	intake := &fakeIntake{resp: &models.SubmitReceiptResponse{ReceiptID: "claim-1", Message: "ok"}}
	router := newRouter(intake, &fakeDirectory{})

	rec := doJSON(t, router, "POST", "/api/v1/receipts",
		`{"name":"A","email":"a@x.com","phone":"+919000000000","amount":199,"reference":"UTR123456789"}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "/api/v1/receipts/claim-1", rec.Header().Get("Location"))

	var resp models.SubmitReceiptResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "claim-1", resp.ReceiptID)

	require.NotNil(t, intake.got)
	assert.Equal(t, models.Amount(199), intake.got.Amount)
}

func TestSubmitReceiptAmountAsString(t *testing.T) {
	intake := &fakeIntake{resp: &models.SubmitReceiptResponse{ReceiptID: "claim-1"}}
	router := newRouter(intake, &fakeDirectory{})

	rec := doJSON(t, router, "POST", "/api/v1/receipts",
		`{"name":"A","email":"a@x.com","phone":"+919000000000","amount":"499.50","reference":"UTR123456789"}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.Amount(499.5), intake.got.Amount)
}

func TestSubmitReceiptPreflight(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})

	rec := doJSON(t, router, "OPTIONS", "/api/v1/receipts", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Content-Type")
}

func TestSubmitReceiptMethodNotAllowed(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})
	rec := doJSON(t, router, "PUT", "/api/v1/receipts", "{}", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSubmitReceiptMalformedJSON(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})
	rec := doJSON(t, router, "POST", "/api/v1/receipts", `{"name":`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReceiptValidationError(t *testing.T) {
	intake := &fakeIntake{err: &validate.Error{Field: "amount", Reason: "must be a positive number"}}
	router := newRouter(intake, &fakeDirectory{})

	rec := doJSON(t, router, "POST", "/api/v1/receipts",
		`{"name":"A","email":"a@x.com","phone":"+919000000000","amount":0,"reference":"UTR123456789"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "amount")
}

// The conflict response names the offending reference.
func TestSubmitReceiptDuplicate(t *testing.T) {
	intake := &fakeIntake{err: &service.DuplicateReferenceError{Reference: "UTR123456789"}}
	router := newRouter(intake, &fakeDirectory{})

	rec := doJSON(t, router, "POST", "/api/v1/receipts",
		`{"name":"B","email":"b@x.com","phone":"+919000000001","amount":499,"reference":"UTR123456789"}`, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "UTR123456789")
}

func TestSubmitReceiptStoreUnavailable(t *testing.T) {
	intake := &fakeIntake{err: errors.New("store unavailable")}
	router := newRouter(intake, &fakeDirectory{})

	rec := doJSON(t, router, "POST", "/api/v1/receipts",
		`{"name":"A","email":"a@x.com","phone":"+919000000000","amount":199,"reference":"UTR123456789"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not saved")
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})

	rec := doJSON(t, router, "GET", "/api/v1/receipts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/receipts", "", map[string]string{"X-Admin-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, "GET", "/api/v1/receipts", "", map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListClaimsEmpty(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})

	rec := doJSON(t, router, "GET", "/api/v1/receipts", "", map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetClaimNotFound(t *testing.T) {
	dir := &fakeDirectory{getErr: store.ErrClaimNotFound}
	router := newRouter(&fakeIntake{}, dir)

	rec := doJSON(t, router, "GET", "/api/v1/receipts/nope", "", map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatusConfirm(t *testing.T) {
	dir := &fakeDirectory{claim: &models.ReceiptClaim{ID: "claim-1", Status: models.StatusConfirmed}}
	router := newRouter(&fakeIntake{}, dir)

	rec := doJSON(t, router, "PATCH", "/api/v1/receipts/claim-1/status",
		`{"status":"Confirmed"}`, map[string]string{"X-Admin-Secret": testSecret})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusConfirmed, dir.updatedTo)
}

func TestUpdateStatusUnknownValue(t *testing.T) {
	router := newRouter(&fakeIntake{}, &fakeDirectory{})

	rec := doJSON(t, router, "PATCH", "/api/v1/receipts/claim-1/status",
		`{"status":"Verified"}`, map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusInvalidTransition(t *testing.T) {
	dir := &fakeDirectory{updateErr: store.ErrInvalidTransition}
	router := newRouter(&fakeIntake{}, dir)

	rec := doJSON(t, router, "PATCH", "/api/v1/receipts/claim-1/status",
		`{"status":"Pending"}`, map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatusNotFound(t *testing.T) {
	dir := &fakeDirectory{updateErr: store.ErrClaimNotFound}
	router := newRouter(&fakeIntake{}, dir)

	rec := doJSON(t, router, "PATCH", "/api/v1/receipts/missing/status",
		`{"status":"Confirmed"}`, map[string]string{"X-Admin-Secret": testSecret})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
