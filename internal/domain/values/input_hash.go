package values

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// InputHash represents the SHA-256 content hash of a node's input data.
// Node inputs are compared by hash only; the payload itself never enters
// the audit pipeline.
type InputHash struct {
	hash string // Hex-encoded SHA-256 hash (64 characters)
}

var (
	// SHA-256 hex regex: exactly 64 hex characters
	sha256HexRegex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// NewInputHash creates a new InputHash value object with validation
func NewInputHash(hash string) (InputHash, error) {
	if hash == "" {
		return InputHash{}, errors.NewValidationError("EMPTY_HASH",
			"input hash cannot be empty")
	}

	// Normalize to lowercase
	normalized := strings.ToLower(strings.TrimSpace(hash))

	// Validate hex format and length
	if !sha256HexRegex.MatchString(normalized) {
		return InputHash{}, errors.NewValidationError("INVALID_HASH_FORMAT",
			"input hash must be a 64-character hexadecimal string (SHA-256)")
	}

	return InputHash{hash: normalized}, nil
}

// NewInputHashFromBytes creates InputHash from raw hash bytes
func NewInputHashFromBytes(bytes []byte) (InputHash, error) {
	if len(bytes) != 32 {
		return InputHash{}, errors.NewValidationError("INVALID_HASH_LENGTH",
			"input hash must be 32 bytes (SHA-256)")
	}

	return InputHash{hash: hex.EncodeToString(bytes)}, nil
}

// ComputeInputHash computes the SHA-256 hash of node input data
func ComputeInputHash(data []byte) (InputHash, error) {
	if len(data) == 0 {
		return InputHash{}, errors.NewValidationError("EMPTY_DATA",
			"data to hash cannot be empty")
	}

	sum := sha256.Sum256(data)
	return NewInputHashFromBytes(sum[:])
}

// MustInputHash creates InputHash and panics on error (for constants/tests)
func MustInputHash(hash string) InputHash {
	h, err := NewInputHash(hash)
	if err != nil {
		panic(err)
	}
	return h
}

// String returns the hex-encoded hash
func (h InputHash) String() string {
	return h.hash
}

// IsEmpty checks if the hash is unset
func (h InputHash) IsEmpty() bool {
	return h.hash == ""
}

// Equal checks if two InputHash objects are equal
func (h InputHash) Equal(other InputHash) bool {
	return h.hash == other.hash
}

// Compare returns -1, 0, or 1 based on lexicographic comparison
func (h InputHash) Compare(other InputHash) int {
	if h.hash < other.hash {
		return -1
	}
	if h.hash > other.hash {
		return 1
	}
	return 0
}

// Truncate returns a truncated hash for display purposes (first 8 characters)
func (h InputHash) Truncate() string {
	if len(h.hash) <= 8 {
		return h.hash
	}
	return h.hash[:8]
}

// Format returns a formatted string for logging/display
func (h InputHash) Format() string {
	if h.IsEmpty() {
		return "<empty>"
	}
	return fmt.Sprintf("hash:%s", h.Truncate())
}

// MarshalJSON implements JSON marshaling
func (h InputHash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.hash)
}

// UnmarshalJSON implements JSON unmarshaling
func (h *InputHash) UnmarshalJSON(data []byte) error {
	var hash string
	if err := json.Unmarshal(data, &hash); err != nil {
		return err
	}

	parsed, err := NewInputHash(hash)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Value implements driver.Valuer for database storage
func (h InputHash) Value() (driver.Value, error) {
	if h.hash == "" {
		return nil, nil
	}
	return h.hash, nil
}

// Scan implements sql.Scanner for database retrieval
func (h *InputHash) Scan(value interface{}) error {
	if value == nil {
		*h = InputHash{}
		return nil
	}

	var str string
	switch v := value.(type) {
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return fmt.Errorf("cannot scan %T into InputHash", value)
	}

	if str == "" {
		*h = InputHash{}
		return nil
	}

	parsed, err := NewInputHash(str)
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// ValidateHashFormat validates that a string could be a valid input hash
func ValidateHashFormat(hash string) error {
	if hash == "" {
		return errors.NewValidationError("EMPTY_HASH", "hash cannot be empty")
	}

	normalized := strings.ToLower(strings.TrimSpace(hash))
	if !sha256HexRegex.MatchString(normalized) {
		return errors.NewValidationError("INVALID_HASH_FORMAT",
			"hash must be a 64-character hexadecimal string")
	}

	return nil
}
