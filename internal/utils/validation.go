package utils

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"dbconnect.dev/frame"
)

// Compiled regular expressions for validation
var (
	// Allow alphanumeric, underscore, hyphen, dot - common in file names
	validNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

const (
	maxNameLength = 255
	MaxLimit      = 100000
)

// ValidateQueryName validates that a query file name is a plain file name inside the query folder
func ValidateQueryName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}

	if len(name) > maxNameLength {
		return fmt.Errorf("name too long (max %d characters)", maxNameLength)
	}

	if !validNamePattern.MatchString(name) {
		return errors.New("name contains invalid characters")
	}

	if strings.HasPrefix(name, ".") {
		return errors.New("name cannot start with a dot")
	}

	return nil
}

// ParseLimitParam retrieves a row limit from the URL query parameters. A missing key returns 0
// (no limit). Invalid values are added to fieldErrors.
func ParseLimitParam(params url.Values, key string, fieldErrors map[string][]string) (int, map[string][]string) {
	if fieldErrors == nil {
		fieldErrors = make(map[string][]string)
	}

	val := params.Get(key)
	if val == "" {
		return 0, fieldErrors
	}

	limit, err := strconv.Atoi(val)
	if err != nil || limit < 1 || limit > MaxLimit {
		fieldErrors[key] = append(fieldErrors[key], fmt.Sprintf("Invalid field value for field %q.", key))
		return 0, fieldErrors
	}
	return limit, fieldErrors
}

// ParseColumnMappings parses "column=type" pairs such as "price=float64"
func ParseColumnMappings(specs []string) (map[string]frame.DataType, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	mappings := make(map[string]frame.DataType, len(specs))
	for _, spec := range specs {
		name, typeName, ok := strings.Cut(spec, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid cast %q, expected column=type", spec)
		}
		dtype, err := frame.ParseDataType(typeName)
		if err != nil {
			return nil, fmt.Errorf("invalid cast %q: %w", spec, err)
		}
		mappings[name] = dtype
	}
	return mappings, nil
}
