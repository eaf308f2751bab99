package config

import "errors"

var (
	// ErrConfigNotFound is returned when the given --config path does not exist.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigVersionTooNew is returned when a config file has a version
	// newer than what this binary supports.
	ErrConfigVersionTooNew = errors.New("config version too new")

	// ErrInvalidRole is returned when role is set to anything but "SS" or "SL".
	ErrInvalidRole = errors.New("config: role must be \"SS\" or \"SL\"")
)
