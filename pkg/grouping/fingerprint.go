/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: fingerprint.go
Description: Crash grouping for Akaylee CrashKit. Computes the stable
fingerprint (SHA-256 over the exception kind plus the top five normalized
frames, 16 hex chars), the issue title, the triaged severity and the
fatality flag. Normalization strips file:line noise so the same crash site
groups identically across builds.
*/

package grouping

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// fingerprintFrames is how many normalized frames feed the hash
const fingerprintFrames = 5

// Fingerprint computes the 16-hex-char grouping key for a record
func Fingerprint(record *core.CrashRecord) string {
	frames := topFrames(record.StackTrace, fingerprintFrames)

	h := sha256.New()
	h.Write([]byte(record.Kind))
	for _, frame := range frames {
		h.Write([]byte{'\n'})
		h.Write([]byte(frame))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// topFrames extracts up to n normalized frames from a rendered stack trace
func topFrames(stack string, n int) []string {
	var frames []string
	for _, line := range strings.Split(stack, "\n") {
		frame := normalizeFrame(line)
		if frame == "" {
			continue
		}
		frames = append(frames, frame)
		if len(frames) == n {
			break
		}
	}
	return frames
}

// normalizeFrame strips file:line and address noise, keeping the call site
// identity. Empty and non-frame lines normalize to "".
func normalizeFrame(line string) string {
	line = strings.TrimSpace(line)
	if line == "" {
		return ""
	}

	// Trailer-style frames: "#003 pc 0xdeadbeef /lib/x.so (symbol+0x10)"
	if strings.HasPrefix(line, "#") {
		if open := strings.LastIndex(line, "("); open >= 0 {
			sym := strings.TrimSuffix(line[open+1:], ")")
			if plus := strings.LastIndex(sym, "+"); plus > 0 {
				sym = sym[:plus]
			}
			return sym
		}
		return ""
	}

	// Runtime-style location lines: "\t/path/file.go:123 +0x45" carry no
	// call identity on their own
	if strings.Contains(line, ".go:") || strings.HasPrefix(line, "goroutine ") {
		return ""
	}

	// Function lines: "pkg/path.Func(0x1, 0x2)" -> "pkg/path.Func"
	if open := strings.Index(line, "("); open > 0 {
		return line[:open]
	}
	return line
}

// Title renders the issue title: "<TypeName> at <TopFrame>"
func Title(record *core.CrashRecord) string {
	typeName := string(record.Kind)
	if idx := strings.LastIndex(typeName, "."); idx >= 0 {
		typeName = typeName[idx+1:]
	}

	frames := topFrames(record.StackTrace, 1)
	if len(frames) == 0 {
		return typeName
	}
	return typeName + " at " + frames[0]
}

// Severity triages a record
func Severity(record *core.CrashRecord) core.Severity {
	switch {
	case record.Severity == core.SeverityCritical,
		record.Kind == core.KindNativeSignal,
		record.Kind == core.KindOutOfMemory,
		record.IsANR,
		record.Native != nil,
		isMainThread(record.ThreadName):
		return core.SeverityCritical
	case isHighFamily(record):
		return core.SeverityHigh
	default:
		return core.SeverityMedium
	}
}

// IsFatal reports whether a record represents a process-ending crash
func IsFatal(record *core.CrashRecord) bool {
	return record.Native != nil ||
		strings.HasPrefix(string(record.Kind), "SIG") ||
		(record.Native == nil && record.Kind == core.KindNativeSignal) ||
		isMainThread(record.ThreadName) ||
		record.Kind == core.KindOutOfMemory ||
		record.IsANR ||
		record.StartupCrash ||
		record.Severity == core.SeverityCritical
}

// isMainThread reports whether name is the UI-equivalent thread
func isMainThread(name string) bool {
	return name == "main" || name == "ui"
}

// isHighFamily matches null-dereference-like and illegal-state messages
func isHighFamily(record *core.CrashRecord) bool {
	msg := strings.ToLower(record.Message)
	return strings.Contains(msg, "nil pointer") ||
		strings.Contains(msg, "null pointer") ||
		strings.Contains(msg, "nullpointer") ||
		strings.Contains(msg, "invalid memory address") ||
		strings.Contains(msg, "illegal state") ||
		strings.Contains(msg, "illegalstate")
}

// Apply computes and attaches fingerprint, title and severity in one pass
func Apply(record *core.CrashRecord) {
	record.Fingerprint = Fingerprint(record)
	record.Title = Title(record)
	record.Severity = Severity(record)
}
