/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: formatter.go
Description: Console line formatter for Akaylee CrashKit. Renders one entry
as "HH:MM:SS.mmm LVL [tag] message key=value ...". The tag comes from the
entry's subsystem field when present; remaining fields are appended sorted
by key so consecutive lines diff cleanly.
*/

package logging

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ConsoleFormatter renders compact single-line entries for humans
type ConsoleFormatter struct {
	Colors bool
}

const maxFieldValueLen = 60

var levelTags = map[logrus.Level]string{
	logrus.DebugLevel: "DBG",
	logrus.InfoLevel:  "INF",
	logrus.WarnLevel:  "WRN",
	logrus.ErrorLevel: "ERR",
	logrus.FatalLevel: "FTL",
	logrus.PanicLevel: "PNC",
}

var levelColors = map[logrus.Level]string{
	logrus.DebugLevel: "37", // white
	logrus.InfoLevel:  "32", // green
	logrus.WarnLevel:  "33", // yellow
	logrus.ErrorLevel: "31", // red
	logrus.FatalLevel: "35", // magenta
	logrus.PanicLevel: "35",
}

// Format renders one entry as a single line
func (f *ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b strings.Builder

	b.WriteString(f.paint("36", e.Time.Format("15:04:05.000")))
	b.WriteByte(' ')

	tag, ok := levelTags[e.Level]
	if !ok {
		tag = strings.ToUpper(e.Level.String())
	}
	b.WriteString(f.paint(levelColors[e.Level], tag))
	b.WriteByte(' ')

	if sub, ok := e.Data["subsystem"].(string); ok && sub != "" {
		b.WriteString(f.paint("35", "["+sub+"]"))
		b.WriteByte(' ')
	}

	b.WriteString(e.Message)

	for _, key := range sortedFieldKeys(e.Data) {
		b.WriteByte(' ')
		b.WriteString(f.paint("34", key))
		b.WriteByte('=')
		b.WriteString(renderValue(e.Data[key]))
	}

	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// paint wraps s in an ANSI color when colors are on
func (f *ConsoleFormatter) paint(color, s string) string {
	if !f.Colors || color == "" {
		return s
	}
	return "\033[" + color + "m" + s + "\033[0m"
}

// sortedFieldKeys returns the field keys in stable order, the subsystem tag
// excluded because it already rendered as the prefix
func sortedFieldKeys(fields logrus.Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "subsystem" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// renderValue formats one field value, keeping lines short
func renderValue(v interface{}) string {
	switch val := v.(type) {
	case time.Duration:
		return val.String()
	case time.Time:
		return val.Format("15:04:05.000")
	case error:
		return quoteIfSpaced(val.Error())
	case string:
		if len(val) > maxFieldValueLen {
			val = val[:maxFieldValueLen] + "..."
		}
		return quoteIfSpaced(val)
	case []byte:
		return fmt.Sprintf("[%d bytes]", len(val))
	default:
		return fmt.Sprintf("%v", val)
	}
}

// quoteIfSpaced quotes values that would split into multiple tokens
func quoteIfSpaced(s string) string {
	if strings.ContainsAny(s, " \t") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
