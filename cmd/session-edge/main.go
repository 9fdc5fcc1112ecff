// Command session-edge runs the session pipeline in front of the REST
// gateway. Every non-public request has its session cookies reassembled,
// refreshed when close to expiry and forwarded upstream with the access
// token as a bearer credential.
//
// Run:
//
//	SESSION_IDP_TOKEN_URL=https://idp.example.com/oauth/token \
//	SESSION_IDP_CLIENT_ID=hr-portal \
//	SESSION_SIGNING_KEY=... SESSION_PUBLIC_KEY=... \
//	SESSION_GATEWAY_URL=http://gateway:8080 \
//	go run ./cmd/session-edge -config session.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", "session.yaml", "path to the YAML config file")
		addr        = flag.String("addr", ":8080", "public listen address")
		metricsAddr = flag.String("metrics-addr", ":9090", "metrics listen address, empty disables")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")
	)
	flag.Parse()

	log := newLogger(*logLevel)

	a, err := newApp(appOptions{
		ConfigPath:  *configPath,
		Addr:        *addr,
		MetricsAddr: *metricsAddr,
	}, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.Run(ctx)
}
