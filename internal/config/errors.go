package config

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from
// callers; both are fatal at startup.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
