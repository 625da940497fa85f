package accesspoint

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxAliasLength       = 64
	maxDescriptionLength = 512
)

var (
	aliasPattern      = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 ._-]*$`)
	controllerPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{0,31}$`)
)

// Validate checks an access point before it is written. Alias is trimmed
// in place.
func Validate(ap *AccessPoint) error {
	ap.Alias = strings.TrimSpace(ap.Alias)
	if ap.Alias == "" || len(ap.Alias) > maxAliasLength || !aliasPattern.MatchString(ap.Alias) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, ap.Alias)
	}
	if !controllerPattern.MatchString(ap.ControllerModule) {
		return fmt.Errorf("%w: %q", ErrInvalidController, ap.ControllerModule)
	}
	if len(ap.Description) > maxDescriptionLength {
		return fmt.Errorf("%w: max %d characters", ErrDescriptionTooLong, maxDescriptionLength)
	}
	return nil
}
