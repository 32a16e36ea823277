package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcred/internal/credential"
	"medcred/internal/document"
	"medcred/internal/specialty"
)

type stubService struct {
	got    credential.Request
	result credential.Result
}

func (s *stubService) Verify(_ context.Context, req credential.Request) credential.Result {
	s.got = req
	return s.result
}

func newRouter(svc Service) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestHandleVerify(t *testing.T) {
	svc := &stubService{result: credential.Result{
		IsValid:            true,
		IsVerified:         true,
		DocumentType:       document.NationalID,
		Confidence:         document.ConfidenceMedium,
		DoctorName:         "ANGHINIE DEONORA SANCHEZ RODRIGUEZ",
		Specialty:          "ESPECIALISTA EN MEDICINA INTERNA",
		Specialties:        []string{"ESPECIALISTA EN MEDICINA INTERNA"},
		SpecialtyOutcome:   specialty.OutcomeSingle,
		VerificationSource: credential.SourceRegistryScrape,
		RawMatchCount:      1,
		Warnings:           []string{},
		Errors:             []string{},
	}}
	body := `{"document_number":"V-13266929","first_name":" Anghinie ","birth_date":"1980-02-29"}`

	rec := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/credentials/verify", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Anghinie", svc.got.FirstName)
	require.NotNil(t, svc.got.BirthDate)
	assert.Equal(t, 1980, svc.got.BirthDate.Year())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["is_verified"])
	assert.Equal(t, "national_id", resp["document_type"])
	assert.Equal(t, "registry_scrape", resp["verification_source"])
	assert.Equal(t, "ESPECIALISTA EN MEDICINA INTERNA", resp["specialty"])
}

func TestHandleVerify_BadBirthDate(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"document_number":"V-13266929","birth_date":"29/02/1980"}`
	newRouter(&stubService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/credentials/verify", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestHandleVerify_UnknownField(t *testing.T) {
	rec := httptest.NewRecorder()
	body := `{"document_number":"V-13266929","cedula":"x"}`
	newRouter(&stubService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/credentials/verify", strings.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
