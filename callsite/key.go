// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package callsite encodes the identity of a profiled call site into a
// fixed-size key that can be hashed and compared in one pass.
package callsite // import "go.opentelemetry.io/luaprof/callsite"

import (
	"bytes"
	"encoding/binary"
	"strconv"

	"github.com/zeebo/xxh3"
)

const (
	// FileWidth is the number of trailing source file bytes kept in a Key.
	FileWidth = 50
	// NameWidth is the number of trailing function name bytes kept in a Key.
	NameWidth = 25

	lineWidth  = 4
	nameOffset = FileWidth + 1
	lineOffset = nameOffset + NameWidth + 1

	// KeyLen is the size of an encoded Key: file, NUL, name, NUL, line.
	KeyLen = lineOffset + lineWidth
)

// Key identifies a call site. Two call sites are the same iff their keys are
// byte-equal. Long file and function names are truncated to their tails, so
// distinct sites that only differ in the truncated prefix share a key.
type Key [KeyLen]byte

// TruncateTail returns the last width bytes of s, or s itself if it is not
// longer than width. Path and name tails are more specific than their heads.
func TruncateTail(s string, width int) string {
	if len(s) > width {
		return s[len(s)-width:]
	}
	return s
}

// Encode builds the Key for a call site. An empty name means the runtime did
// not provide one; the name is then synthesized from the kind, e.g. "(main)".
func Encode(source, name, kind string, lineDefined int32) Key {
	var k Key
	copy(k[:FileWidth], TruncateTail(source, FileWidth))
	if name == "" {
		name = "(" + kind + ")"
	}
	copy(k[nameOffset:nameOffset+NameWidth], TruncateTail(name, NameWidth))
	binary.NativeEndian.PutUint32(k[lineOffset:], uint32(lineDefined))
	return k
}

func field(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// File returns the (possibly truncated) source file stored in the key.
func (k *Key) File() string {
	return field(k[:FileWidth])
}

// Name returns the (possibly truncated or synthesized) function name.
func (k *Key) Name() string {
	return field(k[nameOffset : nameOffset+NameWidth])
}

// Line returns the line at which the call site is defined.
func (k *Key) Line() int32 {
	return int32(binary.NativeEndian.Uint32(k[lineOffset:]))
}

// Hash returns a 64-bit hash of the key.
// xxh3 is 4x faster than fnv.
func (k *Key) Hash() uint64 {
	return xxh3.Hash(k[:])
}

// String renders the key as file:line(name).
func (k Key) String() string {
	return k.File() + ":" + strconv.Itoa(int(k.Line())) + "(" + k.Name() + ")"
}
