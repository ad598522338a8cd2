package logger

import (
	"time"

	"go.uber.org/zap"
)

// String attaches a string value.
func String(key, val string) Field { return zap.String(key, val) }

// Strings attaches a list of strings, such as rejected natural keys.
func Strings(key string, val []string) Field { return zap.Strings(key, val) }

// Int attaches an integer value.
func Int(key string, val int) Field { return zap.Int(key, val) }

// Bool attaches a boolean value.
func Bool(key string, val bool) Field { return zap.Bool(key, val) }

// Duration attaches an elapsed time.
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

// Time attaches a timestamp.
func Time(key string, val time.Time) Field { return zap.Time(key, val) }

// Error attaches err under the "error" key.
func Error(err error) Field { return zap.Error(err) }

// Any attaches val using the best encoding zap finds for it.
func Any(key string, val any) Field { return zap.Any(key, val) }
