// Command kvmirror inspects and watches a kvmirror storage area.
//
//	kvmirror [-config file] get <key>
//	kvmirror [-config file] set <key> <json-value>
//	kvmirror [-config file] rm <key>
//	kvmirror [-config file] ls [pattern]
//	kvmirror [-config file] watch <key> [json-fallback]
//	kvmirror [-config file] hub
//
// Configuration is read from the TOML file and KVMIRROR_* environment
// variables.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
