// Package validation holds input limits and checks shared by request types.
package validation

import (
	"fmt"
	"net/mail"
	"strings"

	dErrors "keystone/pkg/domain-errors"
)

// MaxBodySize caps JSON request bodies (64 KB).
const MaxBodySize = 64 * 1024

const (
	MaxEmailLength = 255
	MaxNameLength  = 128
	// MaxPasswordLength is bcrypt's input limit.
	MaxPasswordLength = 72
	MaxSlugLength     = 63
	MaxDomainLength   = 2048
	// MaxTokenLength bounds opaque tokens (recovery links, SSO tokens) at the boundary.
	MaxTokenLength  = 4096
	MaxAppsPerGrant = 50
)

func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

func CheckStringLength(fieldName, value string, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
	}
	return nil
}

func CheckEachStringLength(fieldName string, values []string, max int) error {
	for _, v := range values {
		if len(v) > max {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d", fieldName, max))
		}
	}
	return nil
}

// CheckEmail requires a bare address (no display name) within MaxEmailLength.
func CheckEmail(value string) error {
	if value == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if err := CheckStringLength("email", value, MaxEmailLength); err != nil {
		return err
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndexByte(value, '@')+1:], ".") {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}
