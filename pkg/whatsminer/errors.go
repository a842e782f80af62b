package whatsminer

import "errors"

var (
	// ErrFrameTooLarge indicates an API v3 reply longer than the client accepts.
	ErrFrameTooLarge = errors.New("api v3 frame too large")

	// ErrBadVersion indicates a fw_ver string that is not YYYYMMDD based.
	ErrBadVersion = errors.New("unrecognized WhatsMiner firmware version")
)
