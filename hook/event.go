// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package hook // import "go.opentelemetry.io/luaprof/hook"

import "strconv"

// EventKind is the kind of a hook event delivered by the runtime.
type EventKind int

const (
	// Call is delivered when a function is entered.
	Call EventKind = iota
	// Return is delivered when a function returns.
	Return
	// TailReturn is delivered for a return that the runtime elided into the
	// caller's frame by a tail call.
	TailReturn
)

func (k EventKind) String() string {
	switch k {
	case Call:
		return "call"
	case Return:
		return "return"
	case TailReturn:
		return "tail return"
	default:
		return "EventKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Descriptor describes the function an event belongs to.
type Descriptor struct {
	// Source is the short source name, usually a file path.
	Source string
	// Name is the name the function was called by, empty if unknown.
	Name string
	// What is the kind of the function: "Lua", "C", "main" or "tail".
	What string
	// LineDefined is the line where the function definition starts.
	LineDefined int32
}

// IsNative reports whether the function is a native (C) function.
func (d *Descriptor) IsNative() bool {
	return d.What == "C"
}
