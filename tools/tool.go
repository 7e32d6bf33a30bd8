package tools

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/supportagent/chatmodel"
	"github.com/effective-security/supportagent/pkg/schema"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

// ITool is a tool for the llm agent to interact with different applications.
type ITool interface {
	// Name returns the name of the Tool.
	Name() string
	// Description returns the description of the tool, to be used in the prompt.
	Description() string
	// InputSchema returns the JSON schema of the tool arguments.
	InputSchema() *jsonschema.Schema
	// Call executes the tool with the given JSON arguments.
	// The returned value is the structured payload of the result.
	Call(ctx context.Context, input json.RawMessage) (any, error)
}

// Tool is an ITool with a typed input.
type Tool[I any] interface {
	ITool
	Run(context.Context, *I) (any, error)
}

// HandlerFunc is the typed handler of a Function tool.
type HandlerFunc[I any] func(ctx context.Context, req *I) (any, error)

// Function is a Tool backed by a HandlerFunc,
// its input schema is reflected from I.
type Function[I any] struct {
	name        string
	description string
	schema      *schema.Schema
	handler     HandlerFunc[I]
}

// ensure Function implements the Tool interface
var _ Tool[struct{}] = (*Function[struct{}])(nil)

var validate = validator.New()

// NewFunction returns a tool with the schema reflected from the input type.
func NewFunction[I any](name, description string, handler HandlerFunc[I]) (*Function[I], error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}
	if handler == nil {
		return nil, errors.Newf("tool %s: handler is required", name)
	}

	sc, err := schema.New(reflect.TypeFor[I]())
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s: failed to create schema", name)
	}
	return &Function[I]{
		name:        name,
		description: description,
		schema:      sc,
		handler:     handler,
	}, nil
}

// MustFunction is NewFunction that panics on error.
func MustFunction[I any](name, description string, handler HandlerFunc[I]) *Function[I] {
	f, err := NewFunction(name, description, handler)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Function[I]) Name() string {
	return f.name
}

func (f *Function[I]) Description() string {
	return f.description
}

func (f *Function[I]) InputSchema() *jsonschema.Schema {
	return f.schema.Parameters
}

func (f *Function[I]) Run(ctx context.Context, req *I) (any, error) {
	return f.handler(ctx, req)
}

// Call decodes and validates the input, then runs the handler.
// Decoding and validation failures are marked as chatmodel.ErrValidation.
func (f *Function[I]) Call(ctx context.Context, input json.RawMessage) (any, error) {
	req := new(I)
	data := strings.TrimSpace(string(input))
	if data == "" || data == "null" {
		data = "{}"
	}
	if err := ljson.Unmarshal([]byte(data), req); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to unmarshal input"), chatmodel.ErrValidation)
	}
	if reflect.TypeFor[I]().Kind() == reflect.Struct {
		if err := validate.Struct(req); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid input"), chatmodel.ErrValidation)
		}
	}
	return f.Run(ctx, req)
}

// Definition returns the tool definition published to the model.
func Definition(t ITool) chatmodel.ToolDefinition {
	return chatmodel.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}
}
