package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vinayprograms/kvmirror/bus"
	"github.com/vinayprograms/kvmirror/codec"
	"github.com/vinayprograms/kvmirror/config"
	"github.com/vinayprograms/kvmirror/mirror"
	"github.com/vinayprograms/kvmirror/storage"
)

const usage = `usage: kvmirror [-config file] <command> [args]

commands:
  get <key>                   print the stored value
  set <key> <json-value>      store a value and notify other contexts
  rm <key>                    remove a key and notify other contexts
  ls [pattern]                list keys (pattern may end in *)
  watch <key> [json-fallback] print every change of a key until interrupted
  hub                         serve a WebSocket hub for websocket transports
`

// errUsage marks errors that should print usage.
var errUsage = errors.New("invalid usage")

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("kvmirror", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to a TOML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "kvmirror: %v\n", err)
		return 1
	}
	// stdout carries command output only.
	cfg.Log.Output = "stderr"

	err = dispatch(ctx, cfg, fs.Args(), stdout)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "kvmirror: %v\n%s", err, usage)
		return 2
	default:
		fmt.Fprintf(stderr, "kvmirror: %v\n", err)
		return 1
	}
}

func dispatch(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, args := args[0], args[1:]

	if cmd == "hub" {
		if len(args) != 0 {
			return fmt.Errorf("%w: hub takes no arguments", errUsage)
		}
		return serveHub(ctx, cfg.Transport.Listen, stdout)
	}

	want := map[string][2]int{
		"get":   {1, 1},
		"set":   {2, 2},
		"rm":    {1, 1},
		"ls":    {0, 1},
		"watch": {1, 2},
	}
	bounds, ok := want[cmd]
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	if len(args) < bounds[0] || len(args) > bounds[1] {
		return fmt.Errorf("%w: wrong number of arguments for %s", errUsage, cmd)
	}

	rt, err := config.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch cmd {
	case "get":
		return get(rt, args[0], stdout)
	case "set":
		return set(ctx, rt, args[0], args[1])
	case "rm":
		return remove(ctx, rt, args[0])
	case "ls":
		pattern := "*"
		if len(args) == 1 {
			pattern = args[0]
		}
		return list(rt, pattern, stdout)
	default:
		fallback := "null"
		if len(args) == 2 {
			fallback = args[1]
		}
		return watch(ctx, rt, args[0], fallback, stdout)
	}
}

func get(rt *config.Runtime, key string, stdout io.Writer) error {
	raw, ok, err := rt.Area.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: not found", key)
	}
	fmt.Fprintln(stdout, raw)
	return nil
}

// set and remove go through an engine so other contexts are notified.
// Values are kept as raw JSON text.

func set(ctx context.Context, rt *config.Runtime, key, value string) error {
	if !json.Valid([]byte(value)) {
		return fmt.Errorf("%w: value is not valid JSON", errUsage)
	}
	var failure error
	e := config.Bind(ctx, rt, key, value, rawOptions(rt, &failure)...)
	defer e.Close()

	e.Write(value)
	return failure
}

func remove(ctx context.Context, rt *config.Runtime, key string) error {
	_, ok, err := rt.Area.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	var failure error
	e := config.Bind(ctx, rt, key, "null", rawOptions(rt, &failure)...)
	defer e.Close()

	e.Remove()
	return failure
}

func list(rt *config.Runtime, pattern string, stdout io.Writer) error {
	lister, ok := rt.Area.(storage.Lister)
	if !ok {
		return fmt.Errorf("area %s cannot list keys", rt.Area.ID())
	}
	keys, err := lister.Keys(pattern)
	if err != nil {
		return err
	}
	for _, k := range keys {
		fmt.Fprintln(stdout, k)
	}
	return nil
}

func watch(ctx context.Context, rt *config.Runtime, key, fallback string, stdout io.Writer) error {
	if !json.Valid([]byte(fallback)) {
		return fmt.Errorf("%w: fallback is not valid JSON", errUsage)
	}
	e := config.Bind(ctx, rt, key, fallback, mirror.WithCodec[string](codec.String{}))
	defer e.Close()

	printChange := func(c mirror.Change[string]) {
		if c.Present {
			fmt.Fprintf(stdout, "%s %s %s\n", c.Cause, c.Key, c.Value)
		} else {
			fmt.Fprintf(stdout, "%s %s <absent>\n", c.Cause, c.Key)
		}
	}

	v, _ := e.Value()
	fmt.Fprintf(stdout, "current %s %s\n", key, v)
	e.OnChange(printChange)

	<-ctx.Done()
	return nil
}

// rawOptions stores values verbatim and keeps the first failure for the
// exit status, while still reporting through the runtime sink.
func rawOptions(rt *config.Runtime, failure *error) []mirror.Option {
	sink := rt.Sink()
	return []mirror.Option{
		mirror.WithCodec[string](codec.String{}),
		mirror.WithErrorSink(func(err error) {
			if *failure == nil {
				*failure = err
			}
			sink(err)
		}),
	}
}

func serveHub(ctx context.Context, addr string, stdout io.Writer) error {
	hub := bus.NewWebSocketHub(bus.DefaultWebSocketConfig())
	srv := &http.Server{
		Addr:              addr,
		Handler:           hub,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(stdout, "hub listening on %s\n", addr)

	select {
	case err := <-errCh:
		hub.Close()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
