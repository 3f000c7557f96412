// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package callsite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTail(t *testing.T) {
	tests := map[string]struct {
		in     string
		width  int
		expect string
	}{
		"long path":   {in: "/very/long/path/to/module.lua", width: 10, expect: "module.lua"},
		"exact width": {in: "module.lua", width: 10, expect: "module.lua"},
		"short":       {in: "a.lua", width: 10, expect: "a.lua"},
		"empty":       {in: "", width: 10, expect: ""},
	}

	for name, testcase := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, testcase.expect, TruncateTail(testcase.in, testcase.width))
		})
	}
}

func TestEncode(t *testing.T) {
	tests := map[string]struct {
		source string
		name   string
		kind   string
		line   int32
		file   string
		fn     string
		render string
	}{
		"named": {
			source: "path/to/file.lua", name: "myFunc", kind: "Lua", line: 10,
			file: "path/to/file.lua", fn: "myFunc", render: "path/to/file.lua:10(myFunc)",
		},
		"main chunk": {
			source: "main.lua", kind: "main", line: 0,
			file: "main.lua", fn: "(main)", render: "main.lua:0((main))",
		},
		"anonymous": {
			source: "x.lua", kind: "Lua", line: 7,
			file: "x.lua", fn: "(Lua)", render: "x.lua:7((Lua))",
		},
		"negative line": {
			source: "=[C]", kind: "C", line: -1,
			file: "=[C]", fn: "(C)", render: "=[C]:-1((C))",
		},
		"long name": {
			source: "f.lua", name: strings.Repeat("n", 20) + "_tail_of_name", kind: "Lua", line: 3,
			file: "f.lua", fn: strings.Repeat("n", 12) + "_tail_of_name",
			render: "f.lua:3(" + strings.Repeat("n", 12) + "_tail_of_name)",
		},
	}

	for name, testcase := range tests {
		t.Run(name, func(t *testing.T) {
			k := Encode(testcase.source, testcase.name, testcase.kind, testcase.line)
			assert.Equal(t, testcase.file, k.File())
			assert.Equal(t, testcase.fn, k.Name())
			assert.Equal(t, testcase.line, k.Line())
			assert.Equal(t, testcase.render, k.String())
		})
	}
}

func TestEncodeFullWidthFile(t *testing.T) {
	source := strings.Repeat("d", FileWidth)
	k := Encode(source, "f", "Lua", 1)
	assert.Equal(t, source, k.File())
	assert.Equal(t, "f", k.Name())
}

func TestTruncatedPrefixCollides(t *testing.T) {
	tail := "/" + strings.Repeat("x", FileWidth-1)
	a := Encode("/home/alice"+tail, "run", "Lua", 42)
	b := Encode("/srv/bob/other"+tail, "run", "Lua", 42)

	assert.Equal(t, a, b)
	assert.Equal(t, a.Hash(), b.Hash())
	// The kept part is the tail of the path, not a corrupted prefix.
	assert.Equal(t, tail, a.File())
}

func TestDistinctSites(t *testing.T) {
	base := Encode("a.lua", "f", "Lua", 1)
	for name, other := range map[string]Key{
		"file": Encode("b.lua", "f", "Lua", 1),
		"name": Encode("a.lua", "g", "Lua", 1),
		"line": Encode("a.lua", "f", "Lua", 2),
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotEqual(t, base, other)
		})
	}
}
