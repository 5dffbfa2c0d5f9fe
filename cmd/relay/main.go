package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/vbernat/ro-ro-tcp/forward"
)

var VERSION = "SELFBUILD"

const defaultBacklog = 20

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "ro-ro-tcp-relay"
	app.Usage = "accept N striped connections from a proxy and reassemble them into one connection to a target service"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "127.0.0.1:7001",
			Usage: "local address the relay accepts proxy-side connections on",
		},
		cli.StringFlag{
			Name:  "target, t",
			Usage: `address(es) of the upstream service, eg: "host:port" or "host:port,host:port" to try in order`,
		},
		cli.IntFlag{
			Name:  "backlog, b",
			Value: defaultBacklog,
			Usage: "listen backlog",
		},
		cli.IntFlag{
			Name:  "debug, d",
			Value: 0,
			Usage: "debug verbosity level 0-3, given as a value (eg: -d 2); the flag is not repeatable",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to a JSON config file overriding the flags above",
		},
		cli.BoolFlag{
			Name:  "pprof",
			Usage: "enable the pprof HTTP endpoint on 127.0.0.1:6060",
		},
		cli.StringFlag{
			Name:  "statlog",
			Usage: "path to append periodic CSV session-count/byte-counter snapshots to (time.Format patterns in the filename rotate the file)",
		},
		cli.IntFlag{
			Name:  "statinterval",
			Value: 0,
			Usage: "seconds between statlog snapshots; 0 disables",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		checkError(err)
	}
}

func run(c *cli.Context) error {
	cfg := Config{
		Listen:       c.String("listen"),
		Target:       c.String("target"),
		Backlog:      c.Int("backlog"),
		Debug:        c.Int("debug"),
		Pprof:        c.Bool("pprof"),
		StatLog:      c.String("statlog"),
		StatInterval: c.Int("statinterval"),
	}
	if path := c.String("config"); path != "" {
		if err := parseJSONConfig(&cfg, path); err != nil {
			return errors.Wrap(err, "parseJSONConfig")
		}
	}

	if cfg.Target == "" {
		return errors.New("an upstream target is required (--target)")
	}
	targetAddrs, err := forward.ParseAddrList(cfg.Target)
	if err != nil {
		return errors.Wrap(err, "target address")
	}

	if cfg.Pprof {
		go func() {
			log.Println(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}

	reg := forward.NewRegistry()
	go reg.StatLogger(cfg.StatLog, time.Duration(cfg.StatInterval)*time.Second)

	// See cmd/proxy/main.go: cfg.Backlog is kept for config-file parity
	// only, net.Listen does not expose backlog tuning.
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	log.Printf("relay listening on %s, forwarding to %s", cfg.Listen, cfg.Target)

	go sigHandler(reg, func() { listener.Close() })

	for {
		conn, err := listener.Accept()
		if err != nil {
			if cfg.Debug > 0 {
				log.Printf("accept: %v (listener likely closed for shutdown)", err)
			}
			return nil
		}
		tcpConn, ok := conn.(*net.TCPConn)
		if !ok {
			conn.Close()
			continue
		}
		go acceptRemote(reg, cfg, tcpConn, targetAddrs)
	}
}

// acceptRemote is the relay-side counterpart to connection.c's
// incoming_read/incoming_write: one newly accepted socket either
// starts a brand new session (dialing cfg.Target to become its local
// endpoint) or attaches as an additional remote to an existing one.
func acceptRemote(reg *forward.Registry, cfg Config, conn *net.TCPConn, targetAddrs []string) {
	dial := func() (*net.TCPConn, error) {
		return forward.DialAny(context.Background(), targetAddrs)
	}

	session, err := forward.Handshake(conn, reg, dial)
	if err != nil {
		log.Printf("handshake failed: %v", err)
		conn.Close()
		return
	}
	session.Debug = cfg.Debug

	count := session.RemoteCount()
	if cfg.Debug > 0 {
		log.Printf("remote %s attached to session group=%d (now %d remote(s))",
			conn.RemoteAddr(), session.GroupID, count)
	}

	if count == 1 {
		// First remote of a brand new session: the handshake's
		// Allocate call has already registered it. Start forwarding.
		session.Run()
	}
}

func checkError(err error) {
	fmt.Println(color.RedString("%+v", err))
	log.Fatal(err)
}
