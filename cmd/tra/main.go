// Command tra is the thin composition-root entrypoint: it loads
// configuration, wires internal/app's dependency graph, and dispatches
// to one of a handful of verbs. The command dispatcher, argument parser,
// and human-readable formatters a full CLI needs are out of scope here
// (see spec.md's Non-goals) — this binary exists to make internal/app
// runnable and to report exit codes per spec.md §6.6.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tra-cli/tra/internal/app"
	"github.com/tra-cli/tra/internal/config"
	"github.com/tra-cli/tra/internal/journey"
	"github.com/tra-cli/tra/internal/model"
)

// Exit codes per spec.md §6.6.
const (
	exitOK            = 0
	exitBadInput      = 1
	exitAPIError      = 2
	exitMissingCreds  = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("tra", flag.ContinueOnError)
	from := fs.String("from", "", "origin station id or name")
	to := fs.String("to", "", "destination station id or name")
	date := fs.String("date", "", "yyyy-mm-dd")
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: tra <resolve|journey|alerts|fare|health|metrics> [--from X --to Y --date D]")
		return exitBadInput
	}
	verb := fs.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitMissingCreds
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitMissingCreds
	}

	result, code, err := dispatch(ctx, a, verb, *from, *to, *date)
	if err != nil {
		return emitError(err, code)
	}
	return emitResult(result)
}

func dispatch(ctx context.Context, a *app.App, verb, from, to, date string) (interface{}, int, error) {
	switch verb {
	case "resolve":
		return a.ResolveStation(from), exitBadInput, nil
	case "journey":
		options, err := a.FindJourneyOptions(ctx, from, to, date, journey.Options{})
		return options, exitAPIError, err
	case "alerts":
		alerts, err := a.GetActiveAlerts(ctx)
		return alerts, exitAPIError, err
	case "fare":
		options, err := a.CalculateCrossRegionOptions(ctx, from, to)
		return options, exitAPIError, err
	case "health":
		return a.PerformHealthCheck(), exitAPIError, nil
	case "metrics":
		return struct {
			Slots    interface{} `json:"slots"`
			Capacity interface{} `json:"capacity"`
		}{Slots: a.GetPoolMetrics(), Capacity: a.GetPoolCapacity()}, exitAPIError, nil
	default:
		return nil, exitBadInput, fmt.Errorf("unknown verb %q", verb)
	}
}

func emitResult(result interface{}) int {
	data, err := json.Marshal(struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Success: true, Data: result})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitAPIError
	}
	fmt.Println(string(data))
	return exitOK
}

func emitError(err error, fallbackCode int) int {
	data, marshalErr := json.Marshal(struct {
		Success bool        `json:"success"`
		Error   interface{} `json:"error"`
	}{Success: false, Error: err.Error()})
	if marshalErr == nil {
		fmt.Println(string(data))
	} else {
		fmt.Fprintln(os.Stderr, err)
	}

	if code, ok := model.CodeOf(err); ok {
		switch code {
		case model.CodeBadInput, model.CodeStationNotFound, model.CodeNotFound:
			return exitBadInput
		}
	}
	return fallbackCode
}
