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

// VERSION is injected by buildflags, following the teacher's own
// convention in client/main.go.
var VERSION = "SELFBUILD"

const (
	defaultBacklog     = 20 // RO_LISTEN_QUEUE in the original source
	defaultConnections = 4  // RO_CONNECTION_NUMBER in the original source
)

func main() {
	if VERSION == "SELFBUILD" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	app := cli.NewApp()
	app.Name = "ro-ro-tcp-proxy"
	app.Usage = "accept one local connection and stripe it across N connections to a relay"
	app.Version = VERSION
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "listen, l",
			Value: "127.0.0.1:7000",
			Usage: "local address the proxy accepts its one client connection on",
		},
		cli.StringFlag{
			Name:  "relay, r",
			Usage: `relay address(es) to dial, eg: "host:port" or "host:port,host:port" for multiple candidate addresses`,
		},
		cli.IntFlag{
			Name:  "backlog, b",
			Value: defaultBacklog,
			Usage: "listen backlog",
		},
		cli.IntFlag{
			Name:  "connections, z",
			Value: defaultConnections,
			Usage: "number of striped connections opened to the relay per session",
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
		Remote:       c.String("relay"),
		Backlog:      c.Int("backlog"),
		Connections:  c.Int("connections"),
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

	if cfg.Remote == "" {
		return errors.New("a relay address is required (--relay)")
	}
	if cfg.Connections < 1 {
		color.Red("connections must be >= 1, forcing to 1")
		cfg.Connections = 1
	}

	if cfg.Pprof {
		go func() {
			log.Println(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}

	relayAddrs, err := forward.ParseAddrList(cfg.Remote)
	if err != nil {
		return errors.Wrap(err, "relay address")
	}

	reg := forward.NewRegistry()
	go reg.StatLogger(cfg.StatLog, time.Duration(cfg.StatInterval)*time.Second)

	// cfg.Backlog is accepted for config-file parity with the relay
	// side; net.Listen has no portable hook to raise the kernel listen
	// backlog above its own default, so it is not wired further.
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	log.Printf("proxy listening on %s, striping to %v with N=%d", cfg.Listen, relayAddrs, cfg.Connections)

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
		go acceptClient(reg, cfg, tcpConn, relayAddrs)
	}
}

// acceptClient mirrors client_accept_cb's ROLE_PROXY branch in
// original_source/src/connection.c: on accept, immediately open N
// remote connections (here, concurrently, resolving the
// "connection_established" gap — see DESIGN.md) and start the session.
func acceptClient(reg *forward.Registry, cfg Config, client *net.TCPConn, relayAddrs []string) {
	ctx := context.Background()
	conns, err := forward.DialN(ctx, relayAddrs, cfg.Connections)
	if err != nil {
		log.Printf("unable to connect to relay: %v", err)
		client.Close()
		return
	}

	groupID := uint32(0)
	remotes := make([]*forward.Remote, 0, len(conns))
	for i, conn := range conns {
		reply, err := forward.DialHandshake(conn, groupID)
		if err != nil {
			log.Printf("handshake on remote %d failed: %v", i, err)
			conn.Close()
			continue
		}
		groupID = reply
		remotes = append(remotes, &forward.Remote{Conn: conn, Connected: true})
	}
	if len(remotes) == 0 {
		log.Printf("all handshakes failed, aborting session")
		client.Close()
		return
	}

	session, err := forward.NewSession(reg, groupID, client, remotes)
	if err != nil {
		log.Printf("unable to create session: %v", err)
		client.Close()
		for _, r := range remotes {
			r.Conn.Close()
		}
		return
	}
	session.Debug = cfg.Debug
	reg.Add(session)
	if cfg.Debug > 0 {
		log.Printf("session %d established with %d remote(s)", groupID, len(remotes))
	}
	session.Run()
}

func checkError(err error) {
	fmt.Println(color.RedString("%+v", err))
	log.Fatal(err)
}
