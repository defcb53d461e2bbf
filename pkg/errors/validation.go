package errors

import (
	"regexp"
	"strings"
)

// classNameRegex matches class names accepted by the backend: a letter
// followed by letters, digits and underscores. A leading underscore is
// reserved for system classes.
var classNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// fieldNameRegex matches writable field names.
var fieldNameRegex = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// objectIDRegex matches identifiers produced by the stores.
var objectIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const maxNameLength = 128

// ValidateClassName checks a remote class name.
func ValidateClassName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidClass, "class name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidClass, "class name too long (max %d characters)", maxNameLength)
	}
	if !classNameRegex.MatchString(name) {
		return New(ErrCodeInvalidClass, "invalid class name: %q", name)
	}
	return nil
}

// ValidateFieldName checks a field name. Names starting with "__" or "$"
// are reserved for the wire format.
func ValidateFieldName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidField, "field name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidField, "field name too long (max %d characters)", maxNameLength)
	}
	if strings.HasPrefix(name, "__") || strings.HasPrefix(name, "$") {
		return New(ErrCodeInvalidField, "field name is reserved: %q", name)
	}
	if !fieldNameRegex.MatchString(name) {
		return New(ErrCodeInvalidField, "invalid field name: %q", name)
	}
	return nil
}

// ValidateObjectID checks a remote identifier. It rejects anything that
// could escape a URL path segment or a storage key.
func ValidateObjectID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidObjectID, "object id cannot be empty")
	}
	if len(id) > maxNameLength {
		return New(ErrCodeInvalidObjectID, "object id too long (max %d characters)", maxNameLength)
	}
	if !objectIDRegex.MatchString(id) {
		return New(ErrCodeInvalidObjectID, "invalid object id: %q", id)
	}
	return nil
}
