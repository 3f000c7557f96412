// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package interpose // import "go.opentelemetry.io/luaprof/interpose"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v3"
	"golang.org/x/sys/unix"
)

// EnvPrefix is the prefix of the environment variables that configure the
// profiler inside the profiled process, e.g. LUAP_LIBRARY.
const EnvPrefix = "LUAP"

const defaultSignal = "SIGPROF"

// ErrNoLibrary is returned if the path of the genuine runtime library is not set.
var ErrNoLibrary = errors.New("please point " + EnvPrefix +
	"_LIBRARY to your lua executable or library")

// Help strings for the environment variables.
var (
	libraryHelp  = "Path of the genuine Lua library or executable."
	logFileHelp  = "File the reports are appended to. Defaults to stderr."
	signalHelp   = "Signal that requests a live report."
	intervalHelp = "Request a live report at this interval. Zero disables it."
	pprofHelp    = "Write a gzip pprof profile to <prefix>.<pid>.pb.gz on runtime teardown."
	debugHelp    = "Log every call and return event."
	metricsHelp  = "File the profiler's own metrics are appended to on every report."
)

// Config is the profiler configuration taken from the environment.
type Config struct {
	Library     string
	LogFile     string
	SignalName  string
	Interval    time.Duration
	PprofPrefix string
	MetricsFile string
	Debug       bool

	// Signal is SignalName resolved.
	Signal syscall.Signal
}

// ParseConfig reads the configuration from the LUAP_* environment variables.
func ParseConfig() (*Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("luaprof", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&cfg.Debug, "debug", false, debugHelp)
	fs.DurationVar(&cfg.Interval, "interval", 0, intervalHelp)
	fs.StringVar(&cfg.Library, "library", "", libraryHelp)
	fs.StringVar(&cfg.LogFile, "logfile", "", logFileHelp)
	fs.StringVar(&cfg.MetricsFile, "metrics", "", metricsHelp)
	fs.StringVar(&cfg.PprofPrefix, "pprof", "", pprofHelp)
	fs.StringVar(&cfg.SignalName, "signal", defaultSignal, signalHelp)

	if err := ff.Parse(fs, nil, ff.WithEnvVarPrefix(EnvPrefix)); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.Library == "" {
		return ErrNoLibrary
	}

	name := strings.ToUpper(cfg.SignalName)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	cfg.Signal = unix.SignalNum(name)
	if cfg.Signal == 0 {
		return fmt.Errorf("unknown signal %q in %s_SIGNAL", cfg.SignalName, EnvPrefix)
	}

	if cfg.Interval < 0 {
		return fmt.Errorf("negative interval %v in %s_INTERVAL", cfg.Interval, EnvPrefix)
	}
	return nil
}
