package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// Schema is the payload contract a job definition declares. Validate must
// return nil for an acceptable payload and a descriptive error otherwise.
// Implementations must be safe for concurrent use.
type Schema interface {
	Validate(payload any) error
}

// SchemaFunc adapts a plain function to the Schema interface.
type SchemaFunc func(payload any) error

// Validate calls the wrapped function.
func (f SchemaFunc) Validate(payload any) error { return f(payload) }

// jsonSchema validates payloads against a resolved JSON Schema.
type jsonSchema struct {
	resolved *jsonschema.Resolved
}

// SchemaOf derives a JSON Schema from the Go type T and returns a Schema
// that validates payloads against it.
func SchemaOf[T any]() (Schema, error) {
	var zero T
	return SchemaForType(reflect.TypeOf(&zero).Elem())
}

// MustSchemaOf is like SchemaOf but panics on error. Use for package-level
// job definitions where a bad payload type is a programming error.
func MustSchemaOf[T any]() Schema {
	s, err := SchemaOf[T]()
	if err != nil {
		panic(fmt.Sprintf("jobs: build schema: %v", err))
	}
	return s
}

// SchemaForType derives a JSON Schema from a reflected Go type.
func SchemaForType(t reflect.Type) (Schema, error) {
	opts := &jsonschema.ForOptions{
		IgnoreInvalidTypes: true,
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeOf(time.Duration(0)): {Type: "string"},
		},
	}
	built, err := jsonschema.ForType(t, opts)
	if err != nil {
		return nil, errors.Join(jobsError(ErrConfiguration, "build payload schema failed"), err)
	}
	return SchemaFromJSONSchema(built)
}

// SchemaFromJSONSchema wraps an already constructed JSON Schema.
func SchemaFromJSONSchema(s *jsonschema.Schema) (Schema, error) {
	if s == nil {
		return nil, jobsError(ErrConfiguration, "schema is nil")
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, errors.Join(jobsError(ErrConfiguration, "resolve payload schema failed"), err)
	}
	return &jsonSchema{resolved: resolved}, nil
}

// Validate checks the payload against the schema. The payload is normalized
// through JSON marshaling first so Go structs and generic maps validate the
// same way they will be stored.
func (s *jsonSchema) Validate(payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Join(jobsError(ErrValidation, "marshal payload failed"), err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return errors.Join(jobsError(ErrValidation, "decode payload failed"), err)
	}
	if err := s.resolved.Validate(instance); err != nil {
		return errors.Join(jobsError(ErrValidation, "payload does not match schema"), err)
	}
	return nil
}
