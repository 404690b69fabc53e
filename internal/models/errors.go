package models

import "errors"

// ErrNotFound is returned by remote lookups when the record does not exist (yet)
var ErrNotFound = errors.New("not found")
