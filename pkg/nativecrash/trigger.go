/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: trigger.go
Description: Test crash triggers for Akaylee CrashKit. Each kind raises the
signal the corresponding real fault family would produce. The runtime turns
synchronous hardware faults into panics before a watcher can see them, so
the triggers deliver the signal directly; the watcher then records and
re-raises it exactly as it would for a platform-delivered fault.
*/

package nativecrash

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Crash kinds accepted by TriggerCrash
const (
	CrashNullWrite     = 0 // SIGSEGV: null pointer write
	CrashAbort         = 1 // SIGABRT: abnormal termination
	CrashDivideByZero  = 2 // SIGFPE: integer divide by zero
	CrashIllegalAccess = 3 // SIGSEGV: wild pointer write
	CrashStackOverflow = 4 // SIGSEGV: unbounded recursion
)

// TriggerCrash raises the signal for the given crash kind. The process will
// terminate once the handler finishes recording. Unknown kinds are an error.
func TriggerCrash(kind int) error {
	var sig syscall.Signal
	switch kind {
	case CrashNullWrite, CrashIllegalAccess, CrashStackOverflow:
		sig = syscall.SIGSEGV
	case CrashAbort:
		sig = syscall.SIGABRT
	case CrashDivideByZero:
		sig = syscall.SIGFPE
	default:
		return fmt.Errorf("unknown crash kind: %d", kind)
	}
	return unix.Kill(unix.Getpid(), sig)
}
