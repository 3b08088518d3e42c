package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalflow/evalflow/internal/events"
	"github.com/evalflow/evalflow/internal/fixtures"
	"github.com/evalflow/evalflow/internal/storage/sqlite"
	"github.com/evalflow/evalflow/internal/workflow"
)

const seed = `
surveys:
  - id: madurez
    name: Madurez digital
    dimensions:
      - id: estrategia
        name: Estrategia
        questions:
          - {id: q-est-1, text: Hoja de ruta}
          - {id: q-est-2, text: Indicadores}
      - id: procesos
        name: Procesos
        questions:
          - {id: q-pro-1, text: Procesos documentados}
      - id: cultura
        name: Cultura
        questions: [Formacion, Innovacion]
  - id: vacia
    name: Encuesta vacia
companies:
  - {id: acme, name: Acme}
users:
  - {id: ana, name: Ana Admin, role: administrador, companies: [acme]}
  - {id: ursula, name: Ursula Uno, role: usuario, companies: [acme]}
  - {id: ugo, name: Ugo Dos, role: usuario, companies: [acme]}
evaluations:
  - {id: eval-acme, survey: madurez, company: acme, owner: ana, deadline_in: 720h}
  - {id: eval-vacia, survey: vacia, company: acme, owner: ana, deadline_in: 720h}
`

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testServer struct {
	srv *Server
	rec *events.Recorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fx, err := fixtures.Parse([]byte(seed))
	require.NoError(t, err)
	_, err = fx.Apply(context.Background(), store, testNow)
	require.NoError(t, err)

	rec := &events.Recorder{}
	svc, err := workflow.New(&workflow.Config{
		Store:     store,
		Publisher: rec,
		Clock:     func() time.Time { return testNow },
	})
	require.NoError(t, err)

	srv, err := New(Config{Service: svc, BodyLimit: 1 << 20, Health: func() map[string]any {
		return map[string]any{"driver": "sqlite"}
	}})
	require.NoError(t, err)
	return &testServer{srv: srv, rec: rec}
}

// do sends a request and decodes the JSON response body.
func (ts *testServer) do(t *testing.T, method, path, actor string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			data, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != "" {
		req.Header.Set(ActorHeader, actor)
	}

	resp, err := ts.srv.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (ts *testServer) assign(t *testing.T, dimension, assignee string, review bool) map[string]any {
	t.Helper()
	status, body := ts.do(t, http.MethodPost, "/assignments", "ana", map[string]any{
		"evaluacion_id":     "eval-acme",
		"dimension_id":      dimension,
		"usuario_id":        assignee,
		"fecha_limite":      testNow.Add(7 * 24 * time.Hour).Format(time.RFC3339),
		"requiere_revision": review,
	})
	require.Equal(t, http.StatusCreated, status, body)
	return body["data"].(map[string]any)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sqlite", body["driver"])
}

func TestCreateAssignmentAndProgress(t *testing.T) {
	ts := newTestServer(t)

	a := ts.assign(t, "estrategia", "ursula", false)
	assert.Equal(t, "pendiente", a["estado"])
	assert.Equal(t, float64(2), a["total_preguntas"])
	assert.Equal(t, "ana", a["asignado_por"])
	assert.Len(t, ts.rec.OfType(events.EventTypeAssignmentCreated), 1)

	status, body := ts.do(t, http.MethodGet, "/evaluations/eval-acme/progress", "ana", nil)
	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	ev := data["evaluacion"].(map[string]any)
	assert.Equal(t, float64(3), ev["total_dimensiones"])
	assert.Equal(t, float64(1), ev["dimensiones_asignadas"])
	assert.Equal(t, "activa", ev["estado"])
	stats := data["estadisticas"].(map[string]any)
	assert.Equal(t, float64(1), stats["pendiente"])

	status, body = ts.do(t, http.MethodGet, "/evaluations/eval-acme/dimension-availability", "ana", nil)
	require.Equal(t, http.StatusOK, status)
	report := body["data"].(map[string]any)
	assert.Len(t, report["asignadas"], 1)
	assert.Len(t, report["disponibles"], 2)
	holder := report["asignadas"].([]any)[0].(map[string]any)
	assert.Equal(t, "Ursula Uno", holder["usuario_nombre"])
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.assign(t, "estrategia", "ursula", false)

	deadline := testNow.Add(48 * time.Hour).Format(time.RFC3339)
	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   any
		status int
		code   string
	}{
		{"missing actor", http.MethodGet, "/evaluations/eval-acme/progress", "", nil, 400, "VALIDATION"},
		{"not an admin", http.MethodGet, "/evaluations/eval-acme/progress", "ursula", nil, 403, "PERMISSION_DENIED"},
		{"unknown evaluation", http.MethodGet, "/evaluations/nope/progress", "ana", nil, 404, "NOT_FOUND"},
		{"unknown assignment", http.MethodGet, "/assignments/nope", "ana", nil, 404, "NOT_FOUND"},
		{"unknown route", http.MethodGet, "/nothing/here", "ana", nil, 404, "NOT_FOUND"},
		{"malformed body", http.MethodPost, "/assignments", "ana", "{not json", 400, "VALIDATION"},
		{
			"dimension taken", http.MethodPost, "/assignments", "ana",
			map[string]any{"evaluacion_id": "eval-acme", "dimension_id": "estrategia", "usuario_id": "ugo", "fecha_limite": deadline},
			409, "DIMENSION_ALREADY_ASSIGNED",
		},
		{
			"past deadline", http.MethodPost, "/assignments", "ana",
			map[string]any{"evaluacion_id": "eval-acme", "dimension_id": "procesos", "usuario_id": "ugo",
				"fecha_limite": testNow.Add(-time.Hour).Format(time.RFC3339)},
			400, "VALIDATION",
		},
		{
			"empty survey", http.MethodPost, "/assignments/bulk", "ana",
			map[string]any{"evaluacion_id": "eval-vacia", "dimension_ids": []string{"x"}, "usuario_id": "ugo", "fecha_limite": deadline},
			422, "EMPTY_SURVEY",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.do(t, tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.status, status, body)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.code, body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestBulkAssignPartialSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.assign(t, "estrategia", "ursula", false)

	status, body := ts.do(t, http.MethodPost, "/assignments/bulk", "ana", map[string]any{
		"evaluacion_id": "eval-acme",
		"dimension_ids": []string{"estrategia", "procesos", "cultura", "procesos"},
		"usuario_id":    "ugo",
		"fecha_limite":  testNow.Add(72 * time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(2), body["exitosos"])
	assert.Equal(t, float64(2), body["errores"])

	failures := body["errores_detalle"].([]any)
	require.Len(t, failures, 2)
	failure := failures[0].(map[string]any)
	assert.Equal(t, "estrategia", failure["dimension_id"])
	assert.Equal(t, "DIMENSION_ALREADY_ASSIGNED", failure["code"])
	repeat := failures[1].(map[string]any)
	assert.Equal(t, "procesos", repeat["dimension_id"])
	assert.Equal(t, "VALIDATION", repeat["code"])
	assert.Len(t, body["asignaciones"], 2)
}

func TestReviewFlow(t *testing.T) {
	ts := newTestServer(t)
	a := ts.assign(t, "procesos", "ursula", true)
	id := a["id"].(string)

	status, body := ts.do(t, http.MethodPut, "/assignments/"+id+"/answers/q-pro-1", "ursula", map[string]any{"valor": "si"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "pendiente_revision", body["data"].(map[string]any)["estado"])
	assert.Len(t, ts.rec.OfType(events.EventTypeAssignmentSubmittedForReview), 1)

	status, body = ts.do(t, http.MethodPost, "/assignments/"+id+"/review", "ana", map[string]any{"accion": "rechazar"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION", body["code"])

	status, body = ts.do(t, http.MethodPost, "/assignments/"+id+"/review", "ana",
		map[string]any{"accion": "rechazar", "comentarios": "Falta evidencia"})
	require.Equal(t, http.StatusOK, status, body)
	rejected := body["data"].(map[string]any)
	assert.Equal(t, "rechazado", rejected["estado"])
	assert.Equal(t, "Falta evidencia", rejected["comentarios_revision"])
	assert.Len(t, ts.rec.OfType(events.EventTypeAssignmentRejected), 1)

	status, body = ts.do(t, http.MethodPost, "/assignments/"+id+"/review", "ana", map[string]any{"accion": "aprobar"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", body["code"])

	status, body = ts.do(t, http.MethodGet, "/assignments/"+id+"/history", "ana", nil)
	require.Equal(t, http.StatusOK, status)
	history := body["data"].([]any)
	require.NotEmpty(t, history)
	assert.Equal(t, "created", history[0].(map[string]any)["event_type"])
	assert.Equal(t, "rejected", history[len(history)-1].(map[string]any)["event_type"])

	status, body = ts.do(t, http.MethodGet, "/assignments/"+id+"/history?limit=1", "ana", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestReassignAndUserAssignments(t *testing.T) {
	ts := newTestServer(t)
	a := ts.assign(t, "cultura", "ursula", false)
	id := a["id"].(string)

	status, body := ts.do(t, http.MethodPost, "/assignments/"+id+"/reassign", "ana",
		map[string]any{"nuevo_usuario_id": "ugo", "motivo": "vacaciones"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "ugo", body["data"].(map[string]any)["usuario_id"])
	assert.Len(t, ts.rec.OfType(events.EventTypeAssignmentReassigned), 1)

	status, body = ts.do(t, http.MethodGet, "/users/ugo/assignments", "ugo", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = ts.do(t, http.MethodGet, "/users/ursula/assignments", "ursula", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["data"])

	status, body = ts.do(t, http.MethodGet, "/evaluations/eval-acme/assignments", "ana", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestRecountDeactivateAndCancel(t *testing.T) {
	ts := newTestServer(t)
	a := ts.assign(t, "estrategia", "ursula", false)
	id := a["id"].(string)

	// Recount without a body is a no-op on an unanswered assignment.
	status, body := ts.do(t, http.MethodPost, "/assignments/"+id+"/answer-recount", "ursula", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "pendiente", body["data"].(map[string]any)["estado"])

	status, body = ts.do(t, http.MethodPost, "/assignments/"+id+"/deactivate", "ana", map[string]any{"motivo": "error"})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, false, body["data"].(map[string]any)["activo"])

	status, body = ts.do(t, http.MethodPost, "/evaluations/eval-acme/recompute", "ana", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(0), body["data"].(map[string]any)["dimensiones_asignadas"])

	status, body = ts.do(t, http.MethodPost, "/evaluations/eval-acme/cancel", "ana", nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "cancelada", body["data"].(map[string]any)["estado"])

	status, body = ts.do(t, http.MethodPost, "/assignments", "ana", map[string]any{
		"evaluacion_id": "eval-acme", "dimension_id": "procesos", "usuario_id": "ugo",
		"fecha_limite": testNow.Add(24 * time.Hour).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "INVALID_STATE", body["code"])
}
