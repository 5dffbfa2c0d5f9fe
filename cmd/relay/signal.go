// +build linux darwin freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbernat/ro-ro-tcp/forward"
)

// sigHandler: see cmd/proxy/signal.go for the rationale; relay and
// proxy share identical signal semantics (spec.md §5).
func sigHandler(reg *forward.Registry, stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	signal.Ignore(syscall.SIGPIPE)

	for sig := range ch {
		switch sig {
		case syscall.SIGUSR1:
			reg.DebugDump()
		case syscall.SIGHUP:
			// ignored; no config reload in this version
		case syscall.SIGINT, syscall.SIGTERM:
			log.Println("shutdown requested, closing listener")
			stop()
			return
		}
	}
}
