// Package registry maps job names to typed handlers. Registrations are
// created at startup and immutable once the worker starts; dispatch is
// type-erased so the engine can route a byte payload to a strongly-typed
// handler without knowing its types.
package registry

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/samber/lo"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/serializer"
)

// HandlerFunc is a typed handler: it consumes the deserialized request and
// produces a typed response or a structured failure. Cancellation arrives on
// ctx; handlers that want to time themselves out derive from it.
type HandlerFunc[Req, Resp any] func(ctx context.Context, ac *Context[Req]) job.Result[Resp]

// Registration is the type-erased record for one job name. Deserialize
// produces the handler's request value from a payload; Invoke runs the
// handler and serializes its success value.
type Registration struct {
	Name         string
	RequestType  reflect.Type
	ResponseType reflect.Type

	Deserialize func(payload []byte) (any, error)
	Invoke      func(ctx context.Context, request any, j *job.Job) ([]byte, *job.Error)
}

// Registrar populates a registry at startup. Embedding applications
// contribute one per group of handlers they ship.
type Registrar func(*Registry) error

// Registry holds all registrations. Safe for concurrent lookup; registration
// itself happens at startup.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Registration
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]*Registration)}
}

// Lookup returns the registration for a job name.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[name]
	return reg, ok
}

// Names returns the registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.handlers)
}

func (r *Registry) add(reg *Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[reg.Name]; ok {
		return fmt.Errorf("job %q already registered", reg.Name)
	}
	r.handlers[reg.Name] = reg
	return nil
}

// Register binds a typed handler to a job name using JSON serialization for
// both request and response.
func Register[Req, Resp any](r *Registry, name string, fn HandlerFunc[Req, Resp]) error {
	return RegisterWithSerializer(r, name, fn, serializer.NewJSON[Req](), serializer.NewJSON[Resp]())
}

// RegisterWithSerializer binds a typed handler with explicit serializers.
func RegisterWithSerializer[Req, Resp any](
	r *Registry,
	name string,
	fn HandlerFunc[Req, Resp],
	reqSer serializer.Serializer[Req],
	respSer serializer.Serializer[Resp],
) error {
	if name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("handler for job %q cannot be nil", name)
	}

	reg := &Registration{
		Name:         name,
		RequestType:  reflect.TypeFor[Req](),
		ResponseType: reflect.TypeFor[Resp](),
		Deserialize: func(payload []byte) (any, error) {
			return reqSer.Deserialize(payload)
		},
		Invoke: func(ctx context.Context, request any, j *job.Job) ([]byte, *job.Error) {
			req, ok := request.(Req)
			if !ok {
				return nil, job.NewErrorf(job.CodeDeserializationFailed,
					"job %q expects request type %T, got %T", name, req, request)
			}
			res := fn(ctx, &Context[Req]{Request: req, Job: j})
			if !res.Ok() {
				return nil, res.Err()
			}
			out, err := respSer.Serialize(res.Value())
			if err != nil {
				return nil, job.WrapError(job.CodeSerializationFailed,
					fmt.Sprintf("serializing result of job %q", name), err)
			}
			return out, nil
		},
	}
	return r.add(reg)
}

// NoBodyHandlerFunc is a handler registered without a request body.
type NoBodyHandlerFunc[Resp any] func(ctx context.Context, ac *Context[serializer.NoBody]) job.Result[Resp]

// RegisterNoBody binds a handler that takes no request body. The payload is
// ignored and the handler receives the NoBody sentinel uniformly.
func RegisterNoBody[Resp any](r *Registry, name string, fn NoBodyHandlerFunc[Resp]) error {
	if fn == nil {
		return fmt.Errorf("handler for job %q cannot be nil", name)
	}
	wrapped := HandlerFunc[serializer.NoBody, Resp](fn)
	return RegisterWithSerializer(r, name, wrapped, noBodySerializer{}, serializer.NewJSON[Resp]())
}

// noBodySerializer accepts any payload and always yields the sentinel.
type noBodySerializer struct{}

func (noBodySerializer) Serialize(serializer.NoBody) ([]byte, error) { return []byte("{}"), nil }
func (noBodySerializer) Deserialize([]byte) (serializer.NoBody, error) {
	return serializer.NoBody{}, nil
}
