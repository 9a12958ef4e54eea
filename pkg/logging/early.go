package logging

import (
	"fmt"
	"io"
	"os"
)

// EarlyLog reports config and logger bootstrap failures, which happen before
// zap is configured.
type EarlyLog struct {
	out io.Writer
}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{out: os.Stderr}
}

func (l *EarlyLog) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.out, "ampere: bootstrap: "+format+"\n", args...)
}
