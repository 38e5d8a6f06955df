/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: parser_test.go
Description: Tests for the crash trailer parser. Covers a full trailer with
registers, stack and memory dump, header field extraction, malformed input
rejection, missing-section tolerance, and the file-based entry point used
on the recovery path.
*/

package nativecrash

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

const sampleTrailer = `NATIVE_CRASH
Signal: SIGSEGV (11)
Description: Segmentation fault (invalid memory access)
Code: 1
Fault Address: 0x00000000deadbeef
Thread: main
PID: 4242
TID: 4243
Time: 1722945600
Frame Count: 3

REGISTERS:
pc: 0x00007f3a1c2b4d10
sp: 0x00007ffc1a2b3c40

STACK TRACE:
#000 pc 0x00007f3a1c2b4d10 /lib/libexample.so (renderFrame+0x24)
#001 pc 0x00007f3a1c2b3a00 /lib/libexample.so (drawScene+0x110)
#002 pc 0x00007f3a1c001200 /lib/libc.so (__libc_start_main+0x80)

MEMORY DUMP:
Before fault address:
0000: de ad be ef 00 11 22 33
After fault address:
0000: 44 55 66 77 88 99 aa bb
`

func TestParseTrailerFullRecord(t *testing.T) {
	record, err := ParseTrailer(sampleTrailer)
	require.NoError(t, err)

	assert.Equal(t, core.KindNativeSignal, record.Kind)
	assert.Equal(t, "Segmentation fault (invalid memory access)", record.Message)
	assert.Equal(t, "main", record.ThreadName)
	assert.NotEmpty(t, record.ID)

	native := record.Native
	require.NotNil(t, native)
	assert.Equal(t, "SIGSEGV", native.SignalName)
	assert.Equal(t, 1, native.SignalCode)
	assert.Equal(t, "0x00000000deadbeef", native.FaultAddress)
	assert.Equal(t, 3, native.FrameCount)

	assert.Equal(t, "0x00007f3a1c2b4d10", native.Registers["pc"])
	assert.Equal(t, "0x00007ffc1a2b3c40", native.Registers["sp"])

	stack := strings.Split(record.StackTrace, "\n")
	require.Len(t, stack, 3)
	assert.Contains(t, stack[0], "renderFrame")
	assert.Contains(t, stack[2], "__libc_start_main")

	assert.Contains(t, native.MemoryDump, "de ad be ef")
	assert.Contains(t, native.MemoryDump, "After fault address")
}

func TestParseTrailerRejectsMalformedInput(t *testing.T) {
	testCases := []struct {
		name string
		text string
	}{
		{name: "empty", text: ""},
		{name: "wrong header", text: "HELLO WORLD\nSignal: SIGSEGV (11)\n"},
		{name: "header only", text: "NATIVE_CRASH\n"},
		{name: "missing signal", text: "NATIVE_CRASH\nDescription: something broke\n"},
		{name: "random json", text: `{"kind":"NativeSignal"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTrailer(tc.text)
			assert.Error(t, err)
		})
	}
}

func TestParseTrailerMinimal(t *testing.T) {
	record, err := ParseTrailer("NATIVE_CRASH\nSignal: SIGABRT (6)\n")
	require.NoError(t, err)

	assert.Equal(t, "SIGABRT", record.Native.SignalName)
	assert.Equal(t, "Native crash: SIGABRT", record.Message)
	assert.Empty(t, record.StackTrace)
	assert.Empty(t, record.Native.Registers)
}

func TestParseTrailerIgnoresUnknownHeaderKeys(t *testing.T) {
	text := "NATIVE_CRASH\nSignal: SIGBUS (7)\nSome Future Field: 42\n"
	record, err := ParseTrailer(text)
	require.NoError(t, err)
	assert.Equal(t, "SIGBUS", record.Native.SignalName)
}

func TestParseTrailerFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, TrailerFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleTrailer), 0600))

	record, err := ParseTrailerFile(path)
	require.NoError(t, err)
	assert.Equal(t, "SIGSEGV", record.Native.SignalName)

	_, err = ParseTrailerFile(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestSignalTables(t *testing.T) {
	testCases := []struct {
		signal      syscall.Signal
		name        string
		description string
	}{
		{signal: syscall.SIGSEGV, name: "SIGSEGV", description: "Segmentation fault (invalid memory access)"},
		{signal: syscall.SIGABRT, name: "SIGABRT", description: "Abort signal (abnormal termination)"},
		{signal: syscall.SIGFPE, name: "SIGFPE", description: "Floating point exception"},
		{signal: syscall.SIGILL, name: "SIGILL", description: "Illegal instruction"},
		{signal: syscall.SIGBUS, name: "SIGBUS", description: "Bus error (invalid memory alignment)"},
		{signal: syscall.SIGTRAP, name: "SIGTRAP", description: "Trace/breakpoint trap"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, signalName(tc.signal))
			assert.Equal(t, tc.description, signalDescription(tc.signal))
		})
	}
}

func TestTriggerCrashRejectsUnknownKind(t *testing.T) {
	assert.Error(t, TriggerCrash(99))
	assert.Error(t, TriggerCrash(-1))
}
