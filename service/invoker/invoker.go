// Package invoker executes registered tool calls on behalf of agent
// sessions. It resolves the action service, coerces the loosely-typed call
// arguments into the method's input type and wraps the outcome in a uniform
// result envelope, so a tool failure becomes data rather than a crash.
package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/viant/structology/conv"

	"github.com/autarch-dev/autarch/extension"
	"github.com/autarch-dev/autarch/model/types"
)

// Listener is invoked once a tool call completes, regardless of whether it
// returned an error. Implementations can log, collect metrics or perform any
// other side-effects they require.
type Listener func(service, method string, input, output interface{}, err error)

// Option customises the invoker instance.
type Option func(*Service)

// WithListener sets the listener invoked after every tool call.
func WithListener(l Listener) Option {
	return func(s *Service) {
		s.listener = l
	}
}

// Service invokes action services by name.
type Service struct {
	actions   *extension.Actions
	converter *conv.Converter
	listener  Listener
}

// New creates an invoker over the given action registry.
func New(actions *extension.Actions, opts ...Option) *Service {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	ret := &Service{
		actions:   actions,
		converter: conv.NewConverter(options),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Invoke executes one tool call. Infrastructure failures (unknown service or
// method, uncoercible arguments) are returned as errors; the tool's own
// failure is folded into the result envelope so the agent can react to it.
func (s *Service) Invoke(ctx context.Context, service, method string, args map[string]interface{}) (*types.Result, error) {
	actionService := s.actions.Lookup(service)
	if actionService == nil {
		return nil, fmt.Errorf("service %v not found", service)
	}
	signature := actionService.Methods().Lookup(method)
	if signature == nil {
		return nil, types.NewMethodNotFoundError(method)
	}
	executable, err := actionService.Method(method)
	if err != nil {
		return nil, fmt.Errorf("failed to find method %v for service %v: %w", method, service, err)
	}

	input := newValue(signature.Input)
	if len(args) > 0 {
		if err := s.converter.Convert(args, input); err != nil {
			return nil, fmt.Errorf("failed to coerce input for %v.%v: %w", service, method, err)
		}
	}
	output := newValue(signature.Output)

	callErr := executable(ctx, input, output)
	if s.listener != nil {
		s.listener(service, method, input, output, callErr)
	}
	if callErr != nil {
		return types.NewErrorResult(callErr), nil
	}
	rendered, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to render output for %v.%v: %w", service, method, err)
	}
	return types.NewResult(string(rendered)), nil
}

// newValue allocates a fresh instance of the signature type, unwrapping one
// pointer level so the executable always receives an addressable value.
func newValue(rType reflect.Type) interface{} {
	if rType == nil {
		return &struct{}{}
	}
	if rType.Kind() == reflect.Ptr {
		rType = rType.Elem()
	}
	return reflect.New(rType).Interface()
}
