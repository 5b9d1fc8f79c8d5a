package smoke

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	errorColor   = color.New(color.FgYellow)
	failedColor  = color.New(color.FgRed)
	skippedColor = color.New(color.Faint, color.FgBlue)
	passedColor  = color.New(color.FgGreen)
)

// Reporter receives scenario progress.
type Reporter interface {
	Started(name string)
	Passed(name string, d time.Duration)
	Failed(name string, err error, artifacts []string)
	Skipped(name, reason string)
}

type nullReporter struct{}

func (nullReporter) Started(string)                 {}
func (nullReporter) Passed(string, time.Duration)   {}
func (nullReporter) Failed(string, error, []string) {}
func (nullReporter) Skipped(string, string)         {}

// ConsoleReporter prints colored progress to Out.
type ConsoleReporter struct {
	Out io.Writer
}

func (c ConsoleReporter) Started(name string) {
	fmt.Fprintf(c.Out, "[%s]\n", name)
}

func (c ConsoleReporter) Passed(name string, d time.Duration) {
	_, _ = passedColor.Fprintf(c.Out, "  ok (%s)\n", d.Round(time.Millisecond))
}

func (c ConsoleReporter) Failed(name string, err error, artifacts []string) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = errorColor.Fprintf(c.Out, "  %s\n", line)
	}
	for _, key := range artifacts {
		fmt.Fprintf(c.Out, "  artifact: %s\n", key)
	}
	_, _ = failedColor.Fprintf(c.Out, "  FAILED: %s\n", name)
}

func (c ConsoleReporter) Skipped(name, reason string) {
	_, _ = skippedColor.Fprintf(c.Out, "  SKIPPED: %s (%s)\n", name, reason)
}

// PrintResults writes the run summary.
func PrintResults(out io.Writer, results Results) {
	if results.OK() {
		_, _ = passedColor.Fprintf(out, "All %d scenarios passed\n", len(results.All))
		return
	}
	_, _ = failedColor.Fprintf(out, "FAILED SCENARIOS (%d):\n", len(results.Failures))
	for _, f := range results.Failures {
		_, _ = failedColor.Fprintf(out, "  * %s\n", f.Name)
	}
}
