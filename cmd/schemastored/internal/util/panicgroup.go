// Package util carries small service-level helpers.
package util

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PanicGroup spins goroutines with a clear upfront policy for internal
// panics: they are logged, optionally counted, and never take the process
// down. Background fetches use it so a single corrupt record cannot kill the
// daemon.
type PanicGroup struct {
	log     *logrus.Entry
	counter prometheus.Counter
}

func NewPanicGroup(log *logrus.Entry) *PanicGroup {
	return &PanicGroup{log: log}
}

func (pg *PanicGroup) WithCounter(counter prometheus.Counter) *PanicGroup {
	return &PanicGroup{log: pg.log, counter: counter}
}

// Go runs fn in a new goroutine, recovering and logging any panic.
func (pg *PanicGroup) Go(fn func()) {
	go func() {
		defer pg.recoverRoutine()
		fn()
	}()
}

func (pg *PanicGroup) recoverRoutine() {
	recoverRes := recover()
	if recoverRes == nil {
		return
	}
	if pg.counter != nil {
		pg.counter.Inc()
	}
	if pg.log != nil {
		for _, line := range callStack(recoverRes) {
			pg.log.Warn(line)
		}
	}
}

// callStack renders the panic value plus the call stack of the panic site,
// one log line per line of the stack trace. While we're inside the recover handler,
// debug.Stack() still points at the frames where the panic took place.
func callStack(recoverRes interface{}) []string {
	lines := []string{fmt.Sprintf("panic: %v", recoverRes)}
	for _, line := range strings.FieldsFunc(string(debug.Stack()), func(r rune) bool {
		return r == '\n' || r == '\t'
	}) {
		lines = append(lines, line)
		if strings.Contains(line, "(*PanicGroup).Go") {
			break
		}
	}
	return lines
}
