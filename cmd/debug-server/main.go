// The debug server subscribes to the daemon's debug feed and serves the
// live status page, JSON API, WebSocket stream, and chart endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/armlink-data/teleop.rig/internal/api"
	"github.com/armlink-data/teleop.rig/internal/db"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	feed        = flag.String("feed", api.DefaultFeedEndpoint, "Debug feed endpoint to subscribe to")
	listen      = flag.String("listen", api.DefaultListen, "HTTP listen address")
	dbPath      = flag.String("db", "", "Session database to expose on the admin routes")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *db.DB
	if *dbPath != "" {
		var err error
		store, err = db.Open(*dbPath)
		if err != nil {
			log.Fatalf("open %s: %v", *dbPath, err)
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			log.Fatalf("migrate %s: %v", *dbPath, err)
		}
	}

	manager := api.NewDataManager()
	server := api.NewServer(manager, store)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("data manager: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("subscribing to debug feed at %s", *feed)
		if err := server.ConsumeFeed(ctx, *feed); err != nil && err != context.Canceled {
			log.Printf("feed: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		httpServer := &http.Server{Addr: *listen, Handler: server.Handler()}
		go func() {
			log.Printf("debug server on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("http server: %v", err)
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown: %v", err)
		}
	}()

	wg.Wait()
	log.Print("debug server stopped")
}
