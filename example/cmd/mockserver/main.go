// Standalone fake GitLab instance for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/labwatch migrate -d polls.db
//	go run ./cmd/labwatch poll -u http://localhost:9999 -t any-token -d polls.db -c -i 5
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jpalmerr/labwatch/example/mockgitlab"
)

func main() {
	addr := flag.String("addr", ":9999", "listen address")
	flag.Parse()

	fmt.Printf("Mock GitLab instance starting on %s\n", *addr)
	fmt.Println("State cycles through: ok → degraded → down")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := http.ListenAndServe(*addr, mockgitlab.New(true, logger)); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
