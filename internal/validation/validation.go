// Package validation provides input validation middleware for the FraudGuard API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

var (
	// hashRegex validates fingerprint hashes (SHA-256, 64 hex chars)
	hashRegex = regexp.MustCompile(`^[a-f0-9]{64}$`)
	// userIDRegex validates user identifiers
	userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]{1,128}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidHash checks if a string is a valid fingerprint hash
func IsValidHash(hash string) bool {
	return hashRegex.MatchString(hash)
}

// IsValidUserID checks if a string is an acceptable user identifier
func IsValidUserID(id string) bool {
	return userIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// SanitizeHash normalizes a fingerprint hash
func SanitizeHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidHash checks if a field is a valid fingerprint hash
func ValidHash(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidHash(value) {
			return &ValidationError{Field: field, Message: "must be a SHA-256 hash (64 hex chars)"}
		}
		return nil
	}
}

// ValidUserID checks if a field is an acceptable user identifier
func ValidUserID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidUserID(value) {
			return &ValidationError{Field: field, Message: "must be 1-128 chars of [a-zA-Z0-9_.:-]"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// HashParamMiddleware validates the :hash URL parameter on routes that use it.
// Apply to route groups that include :hash params to reject malformed hashes early.
func HashParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := c.Param("hash")
		if hash != "" && !IsValidHash(SanitizeHash(hash)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_hash",
				"message": "hash must be a SHA-256 fingerprint hash (64 hex chars)",
			})
			return
		}
		c.Next()
	}
}
