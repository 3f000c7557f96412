// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

//go:build preload

// Command preload is the shared object that is put into LD_PRELOAD of the
// profiled program. It replaces luaL_newstate and lua_close, calls the
// genuine functions of the library named by LUAP_LIBRARY and profiles every
// runtime instance in between.
//
// Build it with the headers of the targeted Lua version:
//
//	CGO_CFLAGS="$(pkg-config --cflags lua5.1)" \
//	  go build -tags preload -buildmode=c-shared -o luaprofile.so ./preload
package main

/*
#cgo LDFLAGS: -ldl
#include <stdlib.h>
#include <string.h>
#include "shim.h"
*/
import "C"

import (
	"context"
	"fmt"
	"syscall"
	"unsafe"

	"go.opentelemetry.io/luaprof/hook"
	"go.opentelemetry.io/luaprof/interpose"
)

var interceptor = interpose.New(context.Background(), open)

// library calls the genuine entry points resolved by luap_open.
type library struct{}

var (
	_ interpose.Library       = library{}
	_ interpose.SignalWatcher = library{}
)

func toLuaState(s interpose.State) *C.lua_State {
	return (*C.lua_State)(unsafe.Pointer(uintptr(s))) //nolint:govet
}

func (library) NewState() interpose.State {
	return interpose.State(uintptr(unsafe.Pointer(C.luap_newstate())))
}

func (library) Close(s interpose.State) {
	C.luap_close(toLuaState(s))
}

func (library) SetHook(s interpose.State) {
	C.luap_sethook(toLuaState(s))
}

// WatchSignal installs a native handler for sig. os/signal can not be used
// as the Go runtime never forwards SIGPROF, the default dump signal.
func (library) WatchSignal(sig syscall.Signal) error {
	if rc, err := C.luap_watch_signal(C.int(sig)); rc != 0 {
		return err
	}
	return nil
}

func open(path string) (interpose.Library, error) {
	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))

	var detail *C.char
	switch C.luap_open(cpath, &detail) {
	case C.LUAP_OK:
		return library{}, nil
	case C.LUAP_ERR_SYMBOL:
		return nil, fmt.Errorf("%s() library call: %w", C.GoString(detail),
			interpose.ErrMissingSymbol)
	default:
		return nil, fmt.Errorf("dlopen %s: %s", path, C.GoString(detail))
	}
}

// cstring returns a string that shares the memory of s. It must not be
// retained beyond the hook call.
func cstring(s *C.char) string {
	if s == nil {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Pointer(s)), int(C.strlen(s)))
}

//export goHookEvent
func goHookEvent(kind C.int, what, source, name *C.char, lineDefined C.int) {
	site := hook.Descriptor{
		Source:      cstring(source),
		Name:        cstring(name),
		What:        cstring(what),
		LineDefined: int32(lineDefined),
	}
	interceptor.OnEvent(hook.EventKind(kind), &site)
}

//export goDumpRequested
func goDumpRequested() {
	interceptor.RequestDump()
}

//export luaL_newstate
func luaL_newstate() *C.lua_State {
	return toLuaState(interceptor.NewState())
}

//export lua_close
func lua_close(L *C.lua_State) {
	interceptor.Close(interpose.State(uintptr(unsafe.Pointer(L))))
}

func main() {}
