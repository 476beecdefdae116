// Package kvlog provides simple leveled logging for kvreplica.
//
// Time/Date are not logged by default because systemd adds them for us;
// call SetLogDateTime(true) to enable it. Uses the same prefix scheme
// as https://www.freedesktop.org/software/systemd/man/sd-daemon.html.
package kvlog

import (
	"fmt"
	"log"
	"os"
)

// severity indexes the six levels below, lowest to highest.
type severity int

const (
	sevDebug severity = iota
	sevInfo
	sevNotice
	sevWarn
	sevErr
	sevCrit
)

// level bundles the two loggers (with and without a timestamp prefix)
// backing one severity, plus whether that severity is currently
// discarded by SetLevel.
type level struct {
	plain   *log.Logger
	withTS  *log.Logger
	discard bool
}

func newLevel(prefix string, flags int) *level {
	w := os.Stderr
	return &level{
		plain:  log.New(w, prefix, flags&^log.LstdFlags),
		withTS: log.New(w, prefix, flags|log.LstdFlags),
	}
}

var levels = [...]*level{
	sevDebug:  newLevel("<7>[DEBUG]    ", 0),
	sevInfo:   newLevel("<6>[INFO]     ", 0),
	sevNotice: newLevel("<5>[NOTICE]   ", log.Lshortfile),
	sevWarn:   newLevel("<4>[WARNING]  ", log.Lshortfile),
	sevErr:    newLevel("<3>[ERROR]    ", log.Llongfile),
	sevCrit:   newLevel("<2>[CRITICAL] ", log.Llongfile),
}

var logDateTime bool

// SetLevel discards output below lvl, in order crit > err > warn > notice > info > debug.
func SetLevel(lvl string) {
	for _, l := range levels {
		l.discard = false
	}

	var cutoff severity
	switch lvl {
	case "crit":
		cutoff = sevCrit
	case "err", "fatal":
		cutoff = sevErr
	case "warn":
		cutoff = sevWarn
	case "notice":
		cutoff = sevNotice
	case "info":
		cutoff = sevInfo
	case "debug":
		cutoff = sevDebug
	default:
		fmt.Printf("kvlog: invalid loglevel %q, using 'info'\n", lvl)
		SetLevel("info")
		return
	}

	for sev := sevDebug; sev < cutoff; sev++ {
		levels[sev].discard = true
	}
}

func SetLogDateTime(logdate bool) {
	logDateTime = logdate
}

func (l *level) log(depth int, msg string) {
	if l.discard {
		return
	}
	if logDateTime {
		l.withTS.Output(depth, msg)
	} else {
		l.plain.Output(depth, msg)
	}
}

// depth 3 accounts for the extra frame these entry points add over the
// teacher's direct Logger.Output(2, ...) calls: user -> Debug -> log ->
// Output, where 2 only sufficed for user -> Debugf -> Output.
const callerDepth = 3

func Debug(v ...interface{}) { levels[sevDebug].log(callerDepth, fmt.Sprint(v...)) }
func Info(v ...interface{})  { levels[sevInfo].log(callerDepth, fmt.Sprint(v...)) }
func Note(v ...interface{})  { levels[sevNotice].log(callerDepth, fmt.Sprint(v...)) }
func Warn(v ...interface{})  { levels[sevWarn].log(callerDepth, fmt.Sprint(v...)) }
func Error(v ...interface{}) { levels[sevErr].log(callerDepth, fmt.Sprint(v...)) }
func Crit(v ...interface{})  { levels[sevCrit].log(callerDepth, fmt.Sprint(v...)) }

// Fatal logs at error level and exits the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Debugf(format string, v ...interface{}) {
	levels[sevDebug].log(callerDepth, fmt.Sprintf(format, v...))
}
func Infof(format string, v ...interface{}) {
	levels[sevInfo].log(callerDepth, fmt.Sprintf(format, v...))
}
func Notef(format string, v ...interface{}) {
	levels[sevNotice].log(callerDepth, fmt.Sprintf(format, v...))
}
func Warnf(format string, v ...interface{}) {
	levels[sevWarn].log(callerDepth, fmt.Sprintf(format, v...))
}
func Errorf(format string, v ...interface{}) {
	levels[sevErr].log(callerDepth, fmt.Sprintf(format, v...))
}

// Fatalf logs at error level and exits the process.
func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}
