package database

import "errors"

var (
	// ErrAliasExists is returned when an attempt is made to insert or rename
	// an alias to a code that is already occupied in the active set.
	ErrAliasExists = errors.New("alias code exists")
	// ErrAliasNotFound is returned when an attempt is made to retrieve
	// an alias using a code that doesn't exist in the active set.
	ErrAliasNotFound = errors.New("alias not found")
)
