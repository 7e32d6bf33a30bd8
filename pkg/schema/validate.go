package schema

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/supportagent/pkg", "schema")

const resourceURL = "mem://supportagent/input.json"

var (
	printer  = message.NewPrinter(language.English)
	compiled sync.Map // *jsonschema.Schema => *jsv.Schema
)

// FieldError describes a single argument that does not conform to the schema.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) String() string {
	return e.Field + ": " + e.Reason
}

// ValidationError lists the offending arguments.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid arguments: " + strings.Join(parts, "; ")
}

// FieldNames returns the names of the offending arguments.
func (e *ValidationError) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return names
}

// Compile returns the validator of the schema.
// Compiled schemas are cached by pointer.
func Compile(s *jsonschema.Schema) (*jsv.Schema, error) {
	if v, ok := compiled.Load(s); ok {
		return v.(*jsv.Schema), nil
	}

	js, err := json.Marshal(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	doc, err := jsv.UnmarshalJSON(bytes.NewReader(js))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := jsv.NewCompiler()
	c.DefaultDraft(jsv.Draft2020)
	if err = c.AddResource(resourceURL, doc); err != nil {
		return nil, errors.WithStack(err)
	}
	sch, err := c.Compile(resourceURL)
	if err != nil {
		return nil, errors.Wrap(err, "schema: invalid input schema")
	}

	v, _ := compiled.LoadOrStore(s, sch)
	return v.(*jsv.Schema), nil
}

// Validate checks the arguments against the object schema.
// Unknown arguments are allowed unless the schema forbids them.
// A schema that does not compile is not enforced.
func Validate(s *jsonschema.Schema, args map[string]any) error {
	if s == nil {
		return nil
	}

	sch, err := Compile(s)
	if err != nil {
		logger.KV(xlog.WARNING, "reason", "compile", "err", err.Error())
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}
	err = sch.Validate(args)
	if err == nil {
		return nil
	}

	var verr *jsv.ValidationError
	if !errors.As(err, &verr) {
		return errors.WithStack(err)
	}
	return errors.WithStack(&ValidationError{Fields: fieldErrors(verr)})
}

// AsValidationError returns the ValidationError in the chain, if any.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// fieldErrors flattens the leaf errors, sorted by field
func fieldErrors(verr *jsv.ValidationError) []FieldError {
	var fields []FieldError
	var walk func(e *jsv.ValidationError)
	walk = func(e *jsv.ValidationError) {
		if len(e.Causes) > 0 {
			for _, cause := range e.Causes {
				walk(cause)
			}
			return
		}

		switch k := e.ErrorKind.(type) {
		case *kind.Required:
			for _, name := range k.Missing {
				fields = append(fields, FieldError{Field: fieldName(e.InstanceLocation, name), Reason: "is required"})
			}
		case *kind.AdditionalProperties:
			for _, name := range k.Properties {
				fields = append(fields, FieldError{Field: fieldName(e.InstanceLocation, name), Reason: "is not allowed"})
			}
		default:
			fields = append(fields, FieldError{
				Field:  fieldName(e.InstanceLocation),
				Reason: e.ErrorKind.LocalizedString(printer),
			})
		}
	}
	walk(verr)

	slices.SortStableFunc(fields, func(a, b FieldError) int {
		return strings.Compare(a.Field, b.Field)
	})
	return fields
}

func fieldName(location []string, names ...string) string {
	path := append(slices.Clone(location), names...)
	if len(path) == 0 {
		return "arguments"
	}
	return strings.Join(path, ".")
}
