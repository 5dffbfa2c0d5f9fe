// +build linux darwin freebsd

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vbernat/ro-ro-tcp/forward"
)

// sigHandler mirrors the teacher's client/signal.go shape (one
// goroutine, signal.Notify, SIGPIPE ignored) but carries the fuller
// signal set original_source/src/event.c's event_configure wires up:
// SIGHUP ignored, SIGINT/SIGTERM requested to stop the accept loop
// instead of being left to the default terminate action, SIGUSR1
// dumping the registry instead of KCP SNMP stats.
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
