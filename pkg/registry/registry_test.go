package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/serializer"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Greeting string `json:"greeting"`
}

func TestRegister(t *testing.T) {
	t.Run("typed dispatch round trip", func(t *testing.T) {
		r := New()
		require.NoError(t, Register(r, "greet", func(_ context.Context, ac *Context[greetRequest]) job.Result[greetResponse] {
			return job.Success(greetResponse{Greeting: "hello " + ac.Request.Name})
		}))

		reg, ok := r.Lookup("greet")
		require.True(t, ok)
		require.Equal(t, "greet", reg.Name)

		request, err := reg.Deserialize([]byte(`{"name":"ada"}`))
		require.NoError(t, err)

		j := &job.Job{ID: uuid.New(), Name: "greet"}
		out, jobErr := reg.Invoke(context.Background(), request, j)
		require.Nil(t, jobErr)
		require.JSONEq(t, `{"greeting":"hello ada"}`, string(out))
	})

	t.Run("handler failure propagates", func(t *testing.T) {
		r := New()
		require.NoError(t, Register(r, "fail", func(context.Context, *Context[greetRequest]) job.Result[greetResponse] {
			return job.Failure[greetResponse](job.NewError(job.CodeHandlerError, "nope"))
		}))

		reg, _ := r.Lookup("fail")
		_, jobErr := reg.Invoke(context.Background(), greetRequest{}, &job.Job{})
		require.NotNil(t, jobErr)
		require.Equal(t, job.CodeHandlerError, jobErr.Code)
	})

	t.Run("wrong request type is a deserialization failure", func(t *testing.T) {
		r := New()
		require.NoError(t, Register(r, "greet", func(_ context.Context, ac *Context[greetRequest]) job.Result[greetResponse] {
			return job.Success(greetResponse{})
		}))

		reg, _ := r.Lookup("greet")
		_, jobErr := reg.Invoke(context.Background(), 42, &job.Job{})
		require.NotNil(t, jobErr)
		require.Equal(t, job.CodeDeserializationFailed, jobErr.Code)
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		r := New()
		fn := func(context.Context, *Context[greetRequest]) job.Result[greetResponse] {
			return job.Success(greetResponse{})
		}
		require.NoError(t, Register(r, "greet", fn))
		require.Error(t, Register(r, "greet", fn))
	})

	t.Run("empty name rejected", func(t *testing.T) {
		r := New()
		err := Register(r, "", func(context.Context, *Context[greetRequest]) job.Result[greetResponse] {
			return job.Success(greetResponse{})
		})
		require.Error(t, err)
	})

	t.Run("nil handler rejected", func(t *testing.T) {
		r := New()
		require.Error(t, Register[greetRequest, greetResponse](r, "greet", nil))
	})
}

func TestRegisterNoBody(t *testing.T) {
	r := New()
	require.NoError(t, RegisterNoBody(r, "tick", func(context.Context, *Context[serializer.NoBody]) job.Result[greetResponse] {
		return job.Success(greetResponse{Greeting: "tock"})
	}))

	reg, ok := r.Lookup("tick")
	require.True(t, ok)

	// Any payload deserializes to the sentinel.
	request, err := reg.Deserialize([]byte("whatever"))
	require.NoError(t, err)

	out, jobErr := reg.Invoke(context.Background(), request, &job.Job{})
	require.Nil(t, jobErr)
	require.JSONEq(t, `{"greeting":"tock"}`, string(out))
}

func TestNames(t *testing.T) {
	r := New()
	require.Empty(t, r.Names())

	fn := func(context.Context, *Context[greetRequest]) job.Result[greetResponse] {
		return job.Success(greetResponse{})
	}
	require.NoError(t, Register(r, "a", fn))
	require.NoError(t, Register(r, "b", fn))
	require.ElementsMatch(t, []string{"a", "b"}, r.Names())
}

func TestContextAccessors(t *testing.T) {
	j := &job.Job{HTTPContext: job.HTTPContext{
		Headers:     map[string][]string{"X-Trace": {"abc", "def"}},
		RouteParams: map[string]string{"id": "42"},
		QueryParams: map[string][]string{"verbose": {"1"}},
	}}
	ac := &Context[greetRequest]{Job: j}

	require.Equal(t, "abc", ac.Header("X-Trace"))
	require.Equal(t, "", ac.Header("Missing"))
	require.Equal(t, "42", ac.RouteParam("id"))
	require.Equal(t, "1", ac.QueryParam("verbose"))
}
