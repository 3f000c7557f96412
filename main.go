// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Command luaprof runs a program with the Lua profiler preloaded.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"go.opentelemetry.io/luaprof/interpose"
	"go.opentelemetry.io/luaprof/vc"
)

type exitCode int

const (
	exitSuccess   exitCode = 0
	exitFailure   exitCode = 1
	exitExecError exitCode = 2
)

// execve replaces the current process image. Overridden in tests.
var execve = unix.Exec

func main() {
	os.Exit(int(mainWithExitCode(os.Args[1:])))
}

func mainWithExitCode(argv []string) exitCode {
	args, err := parseArgs(argv)
	if errors.Is(err, flag.ErrHelp) {
		return exitSuccess
	}
	if err != nil {
		return failure("Failure to parse arguments: %v", err)
	}

	if args.version {
		fmt.Print(versionString())
		return exitSuccess
	}

	if args.verbose {
		log.SetLevel(log.DebugLevel)
		// Dump the arguments in debug mode.
		args.dump()
	}

	if len(args.command) == 0 {
		args.usage()
		return failure("Missing command")
	}

	if args.logFile != "" {
		fmt.Printf("logfile is %s.\n", args.logFile)
		setenvDefault(interpose.EnvPrefix+"_LOGFILE", args.logFile)
	}
	if args.luaLib != "" {
		fmt.Printf("library is %s.\n", args.luaLib)
		setenvDefault(interpose.EnvPrefix+"_LIBRARY", args.luaLib)
	}

	preload := preloadList(args.preloadLib, os.Getenv("LD_PRELOAD"))
	log.Debugf("LD_PRELOAD=%s", preload)
	if err = os.Setenv("LD_PRELOAD", preload); err != nil {
		return failure("Failed to set LD_PRELOAD: %v", err)
	}

	if err = run(args.command); err != nil {
		log.Errorf("Failed to run %s: %v", args.command[0], err)
		return exitExecError
	}
	return exitSuccess
}

func versionString() string {
	if rev := vc.Revision(); rev != "" {
		return fmt.Sprintf("%s (revision %s)\n", vc.Version(), rev)
	}
	return vc.Version() + "\n"
}

// setenvDefault sets key to value unless the environment already holds it.
func setenvDefault(key, value string) {
	if _, ok := os.LookupEnv(key); ok {
		log.Debugf("Keeping %s from the environment", key)
		return
	}
	if err := os.Setenv(key, value); err != nil {
		log.Warnf("Failed to set %s: %v", key, err)
	}
}

// preloadList puts lib in front of an already present LD_PRELOAD value.
func preloadList(lib, current string) string {
	if lib == "" {
		lib = defaultArgPreloadLib
	}
	if current == "" {
		return lib
	}
	return lib + ":" + current
}

// run replaces the launcher with command. It only returns on failure.
func run(command []string) error {
	path, err := exec.LookPath(command[0])
	if err != nil {
		return err
	}
	return execve(path, command, os.Environ())
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
