// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/peterbourgon/ff/v3"
	log "github.com/sirupsen/logrus"
)

const (
	// Default values for CLI flags
	defaultArgPreloadLib = "luaprofile.so"
)

// Help strings for command line arguments
var (
	logFileHelp    = "File the profiler appends its reports to. Sets LUAP_LOGFILE if unset."
	luaLibHelp     = "Lua library or executable to profile. Sets LUAP_LIBRARY if unset."
	preloadLibHelp = "Profiler library that is put into LD_PRELOAD."
	verboseHelp    = "Enable verbose logging of the launcher."
	versionHelp    = "Show version."
)

type arguments struct {
	logFile    string
	luaLib     string
	preloadLib string
	verbose    bool
	version    bool

	// command is the program to run and its arguments.
	command []string

	fs *flag.FlagSet
}

func (args *arguments) dump() {
	log.Debug("Config:")
	args.fs.VisitAll(func(f *flag.Flag) {
		log.Debugf("%s: %v", f.Name, f.Value)
	})
	log.Debugf("command: %q", args.command)
}

func (args *arguments) usage() {
	fmt.Fprintf(args.fs.Output(),
		"usage: %s -f LOGFILE -l LUA_LIBRARY [-L PRELOAD_LIB] COMMAND [ARGS...]\n",
		args.fs.Name())
	args.fs.PrintDefaults()
}

func parseArgs(argv []string) (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("luaprof", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.StringVar(&args.logFile, "f", "", "Shorthand for -logfile.")
	fs.StringVar(&args.logFile, "logfile", "", logFileHelp)

	fs.StringVar(&args.luaLib, "l", "", "Shorthand for -lualib.")
	fs.StringVar(&args.luaLib, "lualib", "", luaLibHelp)

	fs.StringVar(&args.preloadLib, "L", defaultArgPreloadLib, "Shorthand for -preloadlib.")
	fs.StringVar(&args.preloadLib, "preloadlib", defaultArgPreloadLib, preloadLibHelp)

	fs.BoolVar(&args.verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verbose, "verbose", false, verboseHelp)
	fs.BoolVar(&args.version, "version", false, versionHelp)

	fs.SetOutput(os.Stderr)
	fs.Usage = args.usage
	args.fs = fs

	// Flags end at the first non-flag argument, everything after it belongs
	// to the profiled command.
	if err := ff.Parse(fs, argv); err != nil {
		return &args, err
	}
	args.command = fs.Args()
	return &args, nil
}
