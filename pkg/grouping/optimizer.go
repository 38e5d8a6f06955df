/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: optimizer.go
Description: Payload optimizer for Akaylee CrashKit. Shrinks every outgoing
crash record to the transport caps: stack trace to 100 lines, threads to 5
with the crashing thread first, breadcrumbs to the last 20, event tails to
10, custom data to 20 keys, memory dump to 1000 chars, and the message,
each thread's stack, breadcrumb messages and log-tail lines to 4000 chars
each. Other strings (title, the top-level stack trace's lines, custom data
and breadcrumb data values) are not length-capped. Strings are scrubbed on
the way through. Serialization strips empty
fields recursively so the wire payload carries no nulls, empty strings,
empty arrays or empty objects.
*/

package grouping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kleascm/akaylee-crashkit/pkg/core"
)

// Transport caps applied to every outgoing record
const (
	MaxStackLines     = 100
	MaxThreads        = 5
	MaxBreadcrumbs    = 20
	MaxEventTail      = 10
	MaxCustomKeys     = 20
	MaxStringLen      = 4000
	MaxMemoryDumpLen  = 1000
	truncationSuffix  = "[truncated]"
	stackTraceEllipse = "... <truncated>"
)

// Optimize shrinks and scrubs a record in place
func Optimize(record *core.CrashRecord) {
	record.StackTrace = capStackTrace(record.StackTrace)
	record.Message = capString(Scrub(record.Message))
	record.Threads = capThreads(record.Threads, record.ThreadName)
	record.Breadcrumbs = capBreadcrumbs(record.Breadcrumbs)
	record.MemoryWarnings = capMemoryEvents(record.MemoryWarnings)
	record.NetworkChanges = capNetworkEvents(record.NetworkChanges)
	record.CustomData = capCustomData(record.CustomData)
	record.LogTail = capLogTail(record.LogTail)

	if record.Native != nil && len(record.Native.MemoryDump) > MaxMemoryDumpLen {
		record.Native.MemoryDump = record.Native.MemoryDump[:MaxMemoryDumpLen]
	}
}

// capStackTrace caps the rendered stack at MaxStackLines with an ellipsis
func capStackTrace(stack string) string {
	stack = Scrub(stack)
	lines := strings.Split(stack, "\n")
	if len(lines) <= MaxStackLines {
		return stack
	}
	capped := append(lines[:MaxStackLines:MaxStackLines], stackTraceEllipse)
	return strings.Join(capped, "\n")
}

// capThreads keeps at most MaxThreads snapshots: crashing thread first,
// then the main thread, then the rest in their original order
func capThreads(threads []core.ThreadSnapshot, crashingName string) []core.ThreadSnapshot {
	if len(threads) == 0 {
		return nil
	}

	sort.SliceStable(threads, func(i, j int) bool {
		return threadRank(threads[i], crashingName) < threadRank(threads[j], crashingName)
	})

	if len(threads) > MaxThreads {
		threads = threads[:MaxThreads]
	}
	for i := range threads {
		threads[i].StackTrace = capString(Scrub(threads[i].StackTrace))
	}
	return threads
}

// threadRank orders crashing thread, main thread, everything else. Snapshot
// markers set at capture time decide; the record's thread name is a fallback
// for records assembled without markers.
func threadRank(t core.ThreadSnapshot, crashingName string) int {
	switch {
	case t.Crashed || (crashingName != "" && t.Name == crashingName):
		return 0
	case t.Main:
		return 1
	default:
		return 2
	}
}

// capBreadcrumbs keeps the most recent MaxBreadcrumbs entries
func capBreadcrumbs(crumbs []core.Breadcrumb) []core.Breadcrumb {
	if len(crumbs) > MaxBreadcrumbs {
		crumbs = crumbs[len(crumbs)-MaxBreadcrumbs:]
	}
	for i := range crumbs {
		crumbs[i].Message = capString(Scrub(crumbs[i].Message))
		crumbs[i].Data = ScrubMap(crumbs[i].Data)
	}
	return crumbs
}

// capMemoryEvents keeps the most recent MaxEventTail entries
func capMemoryEvents(events []core.MemoryEvent) []core.MemoryEvent {
	if len(events) > MaxEventTail {
		events = events[len(events)-MaxEventTail:]
	}
	return events
}

// capNetworkEvents keeps the most recent MaxEventTail entries
func capNetworkEvents(events []core.NetworkEvent) []core.NetworkEvent {
	if len(events) > MaxEventTail {
		events = events[len(events)-MaxEventTail:]
	}
	return events
}

// capCustomData keeps at most MaxCustomKeys entries, smallest keys first
// for determinism, and scrubs the surviving values
func capCustomData(data map[string]string) map[string]string {
	if data == nil {
		return nil
	}
	if len(data) <= MaxCustomKeys {
		return ScrubMap(data)
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	capped := make(map[string]string, MaxCustomKeys)
	for _, k := range keys[:MaxCustomKeys] {
		capped[k] = Scrub(data[k])
	}
	return capped
}

// capLogTail scrubs and caps the recent log lines
func capLogTail(lines []string) []string {
	if len(lines) > MaxEventTail {
		lines = lines[len(lines)-MaxEventTail:]
	}
	for i := range lines {
		lines[i] = capString(Scrub(lines[i]))
	}
	return lines
}

// capString truncates s at MaxStringLen with a suffix marker
func capString(s string) string {
	if len(s) <= MaxStringLen {
		return s
	}
	return s[:MaxStringLen-len(truncationSuffix)] + truncationSuffix
}

// MarshalClean serializes a record with empty fields stripped recursively.
// This is the form that goes on the wire and into the crash store.
func MarshalClean(record *core.CrashRecord) ([]byte, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crash record: %w", err)
	}

	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to reparse crash record: %w", err)
	}

	cleaned := stripEmpty(tree)
	if cleaned == nil {
		cleaned = map[string]any{}
	}
	out, err := json.Marshal(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cleaned record: %w", err)
	}
	return out, nil
}

// stripEmpty removes nulls, empty strings, empty arrays and empty objects
// from a decoded JSON tree. Returns nil when the value itself is empty.
func stripEmpty(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		if val == "" {
			return nil
		}
		return val
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if cleaned := stripEmpty(item); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if cleaned := stripEmpty(item); cleaned != nil {
				out[k] = cleaned
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return val
	}
}
