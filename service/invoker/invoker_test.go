package invoker

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autarch-dev/autarch/extension"
	"github.com/autarch-dev/autarch/model/types"
)

type echoInput struct {
	Message string `json:"message"`
	Repeat  int    `json:"repeat"`
}

type echoOutput struct {
	Echoed string `json:"echoed"`
}

// echoService is a minimal tool used to exercise the invocation plumbing.
type echoService struct{}

func (s *echoService) Name() string { return "echo" }

func (s *echoService) Methods() types.Signatures {
	return []types.Signature{
		{
			Name:   "say",
			Input:  reflect.TypeOf(&echoInput{}),
			Output: reflect.TypeOf(&echoOutput{}),
		},
	}
}

func (s *echoService) Method(name string) (types.Executable, error) {
	switch strings.ToLower(name) {
	case "say":
		return s.say, nil
	default:
		return nil, types.NewMethodNotFoundError(name)
	}
}

func (s *echoService) say(ctx context.Context, in, out interface{}) error {
	input, ok := in.(*echoInput)
	if !ok {
		return types.NewInvalidInputError(in)
	}
	output, ok := out.(*echoOutput)
	if !ok {
		return types.NewInvalidOutputError(out)
	}
	if input.Message == "" {
		return fmt.Errorf("message is required")
	}
	output.Echoed = strings.Repeat(input.Message, input.Repeat)
	return nil
}

func newInvoker(opts ...Option) *Service {
	actions := extension.NewActions()
	actions.Register(&echoService{})
	return New(actions, opts...)
}

func TestInvokeCoercesArguments(t *testing.T) {
	svc := newInvoker()
	// Repeat arrives as a JSON-ish float, the way agent tool calls decode.
	result, err := svc.Invoke(context.Background(), "echo", "say", map[string]interface{}{
		"message": "ab",
		"repeat":  float64(3),
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "ababab")
}

func TestInvokeFoldsToolErrorIntoResult(t *testing.T) {
	svc := newInvoker()
	result, err := svc.Invoke(context.Background(), "echo", "say", map[string]interface{}{
		"repeat": 2,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "message is required")
}

func TestInvokeUnknownServiceAndMethod(t *testing.T) {
	svc := newInvoker()
	_, err := svc.Invoke(context.Background(), "nope", "say", nil)
	assert.Error(t, err)

	_, err = svc.Invoke(context.Background(), "echo", "shout", nil)
	assert.Error(t, err)
}

func TestInvokeIgnoresUnknownArguments(t *testing.T) {
	svc := newInvoker()
	result, err := svc.Invoke(context.Background(), "echo", "say", map[string]interface{}{
		"message":    "x",
		"repeat":     1,
		"unexpected": "extra",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestListenerObservesCalls(t *testing.T) {
	var gotService, gotMethod string
	var gotErr error
	svc := newInvoker(WithListener(func(service, method string, input, output interface{}, err error) {
		gotService, gotMethod, gotErr = service, method, err
	}))

	result, err := svc.Invoke(context.Background(), "echo", "say", map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "echo", gotService)
	assert.Equal(t, "say", gotMethod)
	assert.Error(t, gotErr)
}
