package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"

	"euphoria.io/scope"

	"cosmicwatch.io/sector/backend"
	"cosmicwatch.io/sector/backend/mock"
	"cosmicwatch.io/sector/backend/psql"
	"cosmicwatch.io/sector/proto"
	"cosmicwatch.io/sector/proto/logging"
)

var configPath = flag.String("config", "", "load additional config from this yaml file")

var version string

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *configPath != "" {
		if err := backend.Config.LoadFromFile(*configPath); err != nil {
			return fmt.Errorf("config error: %s", err)
		}
	}

	if version == "" {
		version = "dev"
	}

	ctx := logging.LoggingContext(scope.New(), os.Stdout, "[sector] ")
	logger := logging.Logger(ctx)

	var b proto.Backend
	if dsn := backend.Config.DB.DSN; dsn != "" {
		pb, err := psql.NewBackend(dsn, version)
		if err != nil {
			return fmt.Errorf("backend error: %s", err)
		}
		b = pb
	} else {
		logger.Printf("no dsn given, serving from memory")
		b = mock.NewBackend(version)
	}
	defer b.Close()

	cookieKey, err := backend.Config.Cookie.Key()
	if err != nil {
		return fmt.Errorf("cookie error: %s", err)
	}

	server := backend.NewServer(ctx, b, cookieKey, version)

	logger.Printf("sector %s serving on %s", version, backend.Config.HTTP.Listen)
	return http.ListenAndServe(backend.Config.HTTP.Listen, server)
}
