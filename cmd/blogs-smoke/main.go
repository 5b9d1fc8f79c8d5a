// Command blogs-smoke runs the browser scenarios against a deployed blogs
// application and exits non-zero when any scenario fails or cannot run.
//
// Configuration comes from the environment (BASE_URL, SESSION_SECRET,
// LOGIN_MECHANISM, ...); see internal/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/kuitang/blogs-e2e/internal/config"
	"github.com/kuitang/blogs-e2e/internal/harness"
	"github.com/kuitang/blogs-e2e/internal/obs"
	"github.com/kuitang/blogs-e2e/internal/smoke"
)

func main() {
	os.Exit(run())
}

func run() int {
	filter := flag.String("run", "", "Only run scenarios whose name matches this regular expression")
	list := flag.Bool("list", false, "List scenarios and exit")
	flag.Parse()

	scenarios := smoke.Suite()
	if *list {
		for _, sc := range scenarios {
			fmt.Println(sc.Name)
		}
		return 0
	}

	obs.Init()
	cfg, err := config.LoadHarness()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return 2
	}
	obs.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	env, err := harness.NewEnv(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup: %v\n", err)
		return 2
	}

	runner := &smoke.Runner{Env: env, Reporter: smoke.ConsoleReporter{Out: os.Stdout}}
	if *filter != "" {
		re, err := regexp.Compile(*filter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -run pattern: %v\n", err)
			return 2
		}
		runner.Filter = re
	}

	results := runner.Run(ctx, scenarios)
	smoke.PrintResults(os.Stdout, results)

	return results.ExitCode()
}
