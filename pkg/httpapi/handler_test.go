package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
	"github.com/conveyorq/conveyor/pkg/registry"
	"github.com/conveyorq/conveyor/pkg/serializer"
	"github.com/conveyorq/conveyor/pkg/store/memory"
)

type sendRequest struct {
	To string `json:"to"`
}

type sendResponse struct {
	Sent bool `json:"sent"`
}

func newTestAPI(t *testing.T) (*echo.Echo, *manager.Manager) {
	t.Helper()
	m := manager.New(memory.New(), manager.Config{})
	r := registry.New()
	require.NoError(t, registry.Register(r, "send-email", func(context.Context, *registry.Context[sendRequest]) job.Result[sendResponse] {
		return job.Success(sendResponse{Sent: true})
	}))
	require.NoError(t, registry.RegisterNoBody(r, "tick", func(context.Context, *registry.Context[serializer.NoBody]) job.Result[sendResponse] {
		return job.Success(sendResponse{})
	}))

	e := echo.New()
	NewAPI(m, r).RegisterRoutes(e)
	return e, m
}

func TestSubmitEndpoint(t *testing.T) {
	t.Run("accepts and returns the job body", func(t *testing.T) {
		e, _ := newTestAPI(t)

		req := httptest.NewRequest(http.MethodPost, "/jobs/send-email?priority=high", strings.NewReader(`{"to":"a@example.com"}`))
		req.Header.Set("X-Trace", "abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "send-email", resp.Name)
		require.Equal(t, "Queued", resp.Status)
		require.Equal(t, 0, resp.RetryCount)
		require.NotEmpty(t, resp.ID)
		require.Nil(t, resp.Result)
		require.Nil(t, resp.Error)
	})

	t.Run("captures the request snapshot", func(t *testing.T) {
		e, m := newTestAPI(t)

		req := httptest.NewRequest(http.MethodPost, "/jobs/send-email?priority=high", strings.NewReader(`{"to":"a"}`))
		req.Header.Set("X-Trace", "abc")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		stored, err := m.GetJobByID(context.Background(), uuid.MustParse(resp.ID))
		require.NoError(t, err)
		require.Equal(t, []byte(`{"to":"a"}`), stored.Payload)
		require.Equal(t, []string{"abc"}, stored.HTTPContext.Headers["X-Trace"])
		require.Equal(t, []string{"high"}, stored.HTTPContext.QueryParams["priority"])
	})

	t.Run("idempotency header pins the job id", func(t *testing.T) {
		e, _ := newTestAPI(t)
		pinned := uuid.New()

		submit := func() JobResponse {
			req := httptest.NewRequest(http.MethodPost, "/jobs/send-email", strings.NewReader(`{"to":"a"}`))
			req.Header.Set(manager.IdempotencyHeader, pinned.String())
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			require.Equal(t, http.StatusAccepted, rec.Code)
			var resp JobResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			return resp
		}

		first := submit()
		require.Equal(t, pinned.String(), first.ID)

		second := submit()
		require.Equal(t, first.ID, second.ID)
		require.Equal(t, first.CreatedAt, second.CreatedAt)
	})

	t.Run("unregistered name has no submit route", func(t *testing.T) {
		e, _ := newTestAPI(t)
		req := httptest.NewRequest(http.MethodPost, "/jobs/unknown", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		// The path only matches the GET status route, so echo rejects the
		// method rather than dispatching a handler.
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestGetJobEndpoint(t *testing.T) {
	t.Run("returns the job", func(t *testing.T) {
		e, m := newTestAPI(t)
		j, err := m.Submit(context.Background(), "send-email", []byte(`{}`), job.HTTPContext{})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+j.ID.String(), nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, j.ID.String(), resp.ID)
		require.Equal(t, "Queued", resp.Status)
	})

	t.Run("unknown id is 404", func(t *testing.T) {
		e, _ := newTestAPI(t)
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, job.CodeNotFound, resp.Code)
	})

	t.Run("malformed id is 400", func(t *testing.T) {
		e, _ := newTestAPI(t)
		req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, job.CodeInvalidJobID, resp.Code)
	})
}

func TestJobResponseShaping(t *testing.T) {
	t.Run("json result passes through raw", func(t *testing.T) {
		j := &job.Job{ID: uuid.New(), Name: "x", Status: job.StatusCompleted, Result: []byte(`{"ok":true}`)}
		resp := NewJobResponse(j)
		require.JSONEq(t, `{"ok":true}`, string(resp.Result))
	})

	t.Run("non-json result is quoted", func(t *testing.T) {
		j := &job.Job{ID: uuid.New(), Name: "x", Status: job.StatusCompleted, Result: []byte("plain text")}
		resp := NewJobResponse(j)
		require.Equal(t, `"plain text"`, string(resp.Result))
	})

	t.Run("error is embedded", func(t *testing.T) {
		j := &job.Job{
			ID:     uuid.New(),
			Name:   "x",
			Status: job.StatusFailed,
			Error:  &job.Error{Code: job.CodeHandlerError, Message: "boom"},
		}
		body, err := json.Marshal(NewJobResponse(j))
		require.NoError(t, err)
		require.Contains(t, string(body), `"code":"HANDLER_ERROR"`)
		require.Contains(t, string(body), `"status":"Failed"`)
	})
}
