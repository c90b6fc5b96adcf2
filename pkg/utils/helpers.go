package utils

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultSemaphoreLimit bounds concurrency when a caller does not
	// configure an explicit limit.
	DefaultSemaphoreLimit = 20
)

var (
	// ErrInvalidGroupID is returned when a group ID contains invalid characters
	ErrInvalidGroupID = errors.New("group ID contains invalid characters")

	groupIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// GetSemaphoreLimit returns the semaphore limit from the SEMAPHORE_LIMIT
// environment variable, or the default.
func GetSemaphoreLimit() int {
	val := os.Getenv("SEMAPHORE_LIMIT")
	if val == "" {
		return DefaultSemaphoreLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultSemaphoreLimit
	}
	return limit
}

// ValidateGroupID validates that a group_id contains only ASCII alphanumeric
// characters, dashes, and underscores. The empty string is allowed and means
// the default group.
func ValidateGroupID(groupID string) error {
	if groupID == "" {
		return nil
	}
	if !groupIDPattern.MatchString(groupID) {
		return fmt.Errorf("%w: group ID %q", ErrInvalidGroupID, groupID)
	}
	return nil
}

// GenerateUUID generates a new UUID7 string. UUID7 is time-ordered, which
// keeps correlation ids sortable by creation time.
func GenerateUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseDBTime parses the date representations different store backends hand
// back: native time values, RFC 3339 strings, ISO strings without a zone,
// and NULL. A nil result with a nil error means the column was NULL.
func ParseDBTime(input interface{}) (*time.Time, error) {
	switch v := input.(type) {
	case time.Time:
		return &v, nil
	case *time.Time:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			parsed, err = time.Parse("2006-01-02T15:04:05", v)
			if err != nil {
				return nil, fmt.Errorf("failed to parse date string %q: %w", v, err)
			}
		}
		return &parsed, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported date type: %T", v)
	}
}

// UnmarshalYAMLList parses a YAML document holding a list and decodes each
// item independently, skipping items that fail to decode. The error is
// non-nil only when the document itself cannot be parsed or every item
// failed.
func UnmarshalYAMLList[T any](data []byte) ([]*T, error) {
	var nodes []yaml.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse YAML structure: %w", err)
	}

	results := make([]*T, 0, len(nodes))
	var firstErr error
	skipped := 0
	for i, node := range nodes {
		var item T
		if err := node.Decode(&item); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("item %d: %w", i, err)
			}
			skipped++
			continue
		}
		results = append(results, &item)
	}

	if len(results) == 0 && firstErr != nil {
		return nil, fmt.Errorf("failed to unmarshal any items: %w", firstErr)
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d YAML items failed to parse and were skipped\n", skipped)
	}
	return results, nil
}
