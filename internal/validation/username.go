// Package validation holds input validation rules shared by services and handlers.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var usernameRegex = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)

var reservedUsernames = map[string]struct{}{
	"admin":           {},
	"api":             {},
	"me":              {},
	"users":           {},
	"social":          {},
	"follows":         {},
	"followers":       {},
	"inconsistencies": {},
	"metrics":         {},
	"health":          {},
}

// ValidateUsername validates username syntax and reserved names.
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username must be 3-30 characters and contain only lowercase letters, numbers, underscores, and periods")
	}

	if strings.HasPrefix(username, ".") || strings.HasSuffix(username, ".") || strings.Contains(username, "..") {
		return fmt.Errorf("username cannot start or end with a period or contain consecutive periods")
	}

	if _, exists := reservedUsernames[username]; exists {
		return fmt.Errorf("username is reserved")
	}

	return nil
}
