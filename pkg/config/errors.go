package config

import "errors"

var (
	// ErrParsingConfig is returned when environment variables cannot be parsed into the config struct.
	ErrParsingConfig = errors.New("failed to parse environment variables into config")

	// ErrNilPointer is returned when a nil pointer is provided to Load.
	ErrNilPointer = errors.New("nil pointer provided to config loader")

	// ErrConfigNotLoaded is returned when a configuration type failed to
	// parse on an earlier call and no cached value exists for it.
	ErrConfigNotLoaded = errors.New("configuration not loaded")
)
