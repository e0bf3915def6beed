// Package validation provides request validation helpers and middleware for
// the SuiGuard API.
package validation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suiguard/suiguard/internal/suirpc"
)

// MaxRequestSize is the default request body cap (1MB).
const MaxRequestSize = 1 << 20

// PackageIDKey is the gin context key holding the normalized :packageId.
const PackageIDKey = "package_id"

// RequestSizeMiddleware limits request body size. Reads past the limit fail
// with *http.MaxBytesError; see IsBodyTooLarge.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsBodyTooLarge reports whether err came from a body over the size cap.
func IsBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// SanitizeString trims, strips null bytes and limits length.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
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

// Validate runs validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
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

// SuiID checks that a non-empty field is a 0x-prefixed Sui object or
// package id.
func SuiID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if _, err := suirpc.NormalizeID(value); err != nil {
			return &ValidationError{Field: field, Message: "must be a 0x-prefixed hex id of at most 64 digits"}
		}
		return nil
	}
}

// PackageIDParamMiddleware validates the named URL parameter as a Sui
// package id and stores its canonical form under PackageIDKey.
func PackageIDParamMiddleware(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := suirpc.NormalizeID(c.Param(param))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_package_id",
				"message": "package id must be 0x followed by at most 64 hex digits",
			})
			return
		}
		c.Set(PackageIDKey, id)
		c.Next()
	}
}
