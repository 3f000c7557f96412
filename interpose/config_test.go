// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package interpose

import (
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseConfig(t *testing.T) {
	tests := map[string]struct {
		env    map[string]string
		expect Config
		err    bool
	}{
		"library only": {
			env: map[string]string{"LUAP_LIBRARY": "/usr/lib/liblua.so"},
			expect: Config{Library: "/usr/lib/liblua.so", SignalName: "SIGPROF",
				Signal: unix.SIGPROF},
		},
		"everything": {
			env: map[string]string{
				"LUAP_LIBRARY":  "/usr/bin/lua",
				"LUAP_LOGFILE":  "/tmp/luaprof.log",
				"LUAP_SIGNAL":   "usr1",
				"LUAP_INTERVAL": "30s",
				"LUAP_PPROF":    "/tmp/prof",
				"LUAP_METRICS":  "/tmp/metrics.json",
				"LUAP_DEBUG":    "true",
			},
			expect: Config{Library: "/usr/bin/lua", LogFile: "/tmp/luaprof.log",
				SignalName: "usr1", Signal: unix.SIGUSR1, Interval: 30 * time.Second,
				PprofPrefix: "/tmp/prof", MetricsFile: "/tmp/metrics.json", Debug: true},
		},
		"missing library": {
			env: map[string]string{"LUAP_LOGFILE": "/tmp/luaprof.log"},
			err: true,
		},
		"unknown signal": {
			env: map[string]string{"LUAP_LIBRARY": "lua", "LUAP_SIGNAL": "SIGNOPE"},
			err: true,
		},
		"negative interval": {
			env: map[string]string{"LUAP_LIBRARY": "lua", "LUAP_INTERVAL": "-1s"},
			err: true,
		},
		"malformed interval": {
			env: map[string]string{"LUAP_LIBRARY": "lua", "LUAP_INTERVAL": "soon"},
			err: true,
		},
	}

	for name, testcase := range tests {
		t.Run(name, func(t *testing.T) {
			env := map[string]string{
				"LUAP_LIBRARY":  "",
				"LUAP_LOGFILE":  "",
				"LUAP_SIGNAL":   "SIGPROF",
				"LUAP_INTERVAL": "0s",
				"LUAP_PPROF":    "",
				"LUAP_METRICS":  "",
				"LUAP_DEBUG":    "false",
			}
			maps.Copy(env, testcase.env)
			for key, value := range env {
				t.Setenv(key, value)
			}

			cfg, err := ParseConfig()
			if testcase.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testcase.expect, *cfg)
		})
	}
}

func TestParseConfigNoLibrary(t *testing.T) {
	t.Setenv("LUAP_LIBRARY", "")
	_, err := ParseConfig()
	assert.ErrorIs(t, err, ErrNoLibrary)
}
