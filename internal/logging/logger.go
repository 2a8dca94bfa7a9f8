// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

// package logging provides the shared application logger. All user-facing
// status output goes through fmt; operational logging goes through here.
package logging

import (
	"fmt"
	"os"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Callers should use the helper functions
// below for compatibility with existing calls.
var L = clog.New(os.Stderr)

// SetDebug enables or disables debug-level output on the shared logger.
func SetDebug(enabled bool) {
	if enabled {
		L.SetLevel(clog.DebugLevel)
	} else {
		L.SetLevel(clog.InfoLevel)
	}
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}
