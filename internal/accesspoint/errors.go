package accesspoint

import "errors"

// Domain errors for the accesspoint package.
var (
	// ErrNotFound is returned when an access point ID does not exist.
	ErrNotFound = errors.New("accesspoint: not found")

	// ErrAliasExists is returned when an alias is already in use.
	ErrAliasExists = errors.New("accesspoint: alias already exists")

	// ErrInvalidAlias is returned when an alias is empty, too long or malformed.
	ErrInvalidAlias = errors.New("accesspoint: invalid alias")

	// ErrInvalidController is returned when the controller module name is invalid.
	ErrInvalidController = errors.New("accesspoint: invalid controller module")

	// ErrDescriptionTooLong is returned when a description exceeds the limit.
	ErrDescriptionTooLong = errors.New("accesspoint: description too long")
)
