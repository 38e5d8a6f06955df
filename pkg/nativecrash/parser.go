/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: parser.go
Description: Trailer parser for Akaylee CrashKit. Reads the native_crash.txt
file a previous session left behind and turns it into a crash record: signal
identity, description, fault address, thread, register map, stack lines, and
the memory dump tail. Malformed trailers return an error so the caller can
log and delete instead of dispatching garbage.
*/

package nativecrash

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// Trailer section markers, frozen schema
const (
	trailerHeader     = "NATIVE_CRASH"
	sectionRegisters  = "REGISTERS:"
	sectionStackTrace = "STACK TRACE:"
	sectionMemoryDump = "MEMORY DUMP:"
)

// ParseTrailerFile reads and parses the trailer at path
func ParseTrailerFile(path string) (*core.CrashRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read crash trailer: %w", err)
	}
	return ParseTrailer(string(raw))
}

// ParseTrailer parses trailer text into a crash record. The record carries
// the native fields plus a rendered stack trace; grouping and persistence
// are the caller's job.
func ParseTrailer(text string) (*core.CrashRecord, error) {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != trailerHeader {
		return nil, fmt.Errorf("not a native crash trailer")
	}

	record := core.NewCrashRecord(core.KindNativeSignal)
	native := &core.NativeCrashInfo{Registers: make(map[string]string)}
	record.Native = native

	var stackLines []string
	var dumpLines []string
	section := "header"

	for _, line := range lines[1:] {
		trimmed := strings.TrimSpace(line)
		switch trimmed {
		case sectionRegisters:
			section = "registers"
			continue
		case sectionStackTrace:
			section = "stack"
			continue
		case sectionMemoryDump:
			section = "memory"
			continue
		}
		if trimmed == "" {
			continue
		}

		switch section {
		case "header":
			parseHeaderLine(trimmed, record, native)
		case "registers":
			if name, value, ok := splitRegisterLine(trimmed); ok {
				native.Registers[name] = value
			}
		case "stack":
			stackLines = append(stackLines, trimmed)
		case "memory":
			dumpLines = append(dumpLines, trimmed)
		}
	}

	if native.SignalName == "" {
		return nil, fmt.Errorf("trailer missing signal name")
	}

	record.StackTrace = strings.Join(stackLines, "\n")
	native.MemoryDump = strings.Join(dumpLines, "\n")
	if record.Message == "" {
		record.Message = "Native crash: " + native.SignalName
	}
	return record, nil
}

// parseHeaderLine consumes one "Key: value" header line
func parseHeaderLine(line string, record *core.CrashRecord, native *core.NativeCrashInfo) {
	key, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)

	switch key {
	case "Signal":
		// "SIGSEGV (11)" -> symbolic name only
		if idx := strings.Index(value, " ("); idx > 0 {
			value = value[:idx]
		}
		native.SignalName = value
	case "Description":
		record.Message = value
	case "Code":
		if code, err := strconv.Atoi(value); err == nil {
			native.SignalCode = code
		}
	case "Fault Address":
		native.FaultAddress = value
	case "Thread":
		record.ThreadName = value
	case "Frame Count":
		if count, err := strconv.Atoi(value); err == nil {
			native.FrameCount = count
		}
	}
}

// splitRegisterLine consumes one "name: hexvalue" register line
func splitRegisterLine(line string) (string, string, bool) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	if name == "" || value == "" {
		return "", "", false
	}
	return name, value, true
}
