// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hook // import "go.opentelemetry.io/luaprof/hook"

import (
	log "github.com/sirupsen/logrus"
)

// logf logs per-event tracing at Info level if tracing was requested, so
// it sticks out without enabling the debug firehose, and at Debug otherwise.
func (m *Machine) logf(format string, args ...any) {
	if m.trace {
		log.Infof(format, args...)
	} else {
		log.Debugf(format, args...)
	}
}

// tracing reports whether per-event tracing would be logged. It guards the
// formatting of trace arguments on the hot path.
func (m *Machine) tracing() bool {
	return m.trace || log.IsLevelEnabled(log.DebugLevel)
}
