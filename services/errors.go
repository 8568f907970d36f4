package services

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nls08/NLS-Portal-sub001/utils"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidID  = errors.New("invalid id")
	ErrForbidden  = errors.New("permission denied")
	ErrConflict   = errors.New("conflict")
	ErrTxConflict = errors.New("transaction conflict, retry")
)

// ValidationError reports bad input, either per field or as a single message.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func invalid(format string, args ...interface{}) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ProjectNotFoundError is returned when a write references a project that does not exist.
type ProjectNotFoundError struct {
	ID primitive.ObjectID
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project %s not found", e.ID.Hex())
}

// validate runs struct validation and converts field failures into a ValidationError.
func validate(v interface{}) error {
	fields, err := utils.FieldErrors(v)
	if err != nil {
		return fmt.Errorf("validating input: %w", err)
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "validation failed", Fields: fields}
	}
	return nil
}

// ParseID parses a hex ObjectID from a path or query parameter.
func ParseID(s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return id, nil
}

// parseField parses a hex ObjectID supplied in a request body field.
func parseField(field, s string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return primitive.NilObjectID, &ValidationError{
			Message: fmt.Sprintf("%s must be a valid id", field),
			Fields:  map[string]string{field: "must be a valid id"},
		}
	}
	return id, nil
}

func parseFieldList(field string, values []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(values))
	seen := make(map[primitive.ObjectID]bool, len(values))
	for _, v := range values {
		id, err := parseField(field, v)
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}
