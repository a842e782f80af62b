package database

import "errors"

// ErrNilData is returned when there is nothing to store.
var ErrNilData = errors.New("database: nil data")
