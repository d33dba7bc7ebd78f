// The relay bridges the operator and robot hosts: it forwards teleop
// frames out to viewers and video frames back, and can record the teleop
// stream into a SQLite session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/armlink-data/teleop.rig/internal/db"
	"github.com/armlink-data/teleop.rig/internal/relay"
	"github.com/armlink-data/teleop.rig/internal/version"
)

var (
	viewerSub   = flag.String("sub", relay.DefaultViewerSub, "Teleop frame source endpoint")
	viewerPub   = flag.String("pub", relay.DefaultViewerPub, "Viewer publish endpoint")
	videoSub    = flag.String("video-sub", relay.DefaultVideoSub, "Video return bind endpoint")
	videoPub    = flag.String("video-pub", relay.DefaultVideoPub, "Video publish endpoint")
	noVideo     = flag.Bool("no-video", false, "Run only the teleop path")
	record      = flag.Bool("record", false, "Record forwarded frames into a session")
	dbPath      = flag.String("db", "sessions.db", "Session database path")
	fps         = flag.Float64("fps", 5, "Nominal frame rate stored with the session")
	instruction = flag.String("instruction", "", "Task instruction stored with the session")
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

	viewer := relay.NewViewerRelay()
	viewer.SubEndpoint = *viewerSub
	viewer.PubEndpoint = *viewerPub

	if *record {
		store, err := db.Open(*dbPath)
		if err != nil {
			log.Fatalf("open %s: %v", *dbPath, err)
		}
		defer store.Close()
		if err := store.MigrateUp(); err != nil {
			log.Fatalf("migrate %s: %v", *dbPath, err)
		}

		recorder, err := relay.NewRecorder(store, *fps, *instruction, "relay")
		if err != nil {
			log.Fatalf("start session: %v", err)
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				log.Printf("close session: %v", err)
			}
		}()
		viewer.OnForward = recorder.Record
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := viewer.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("viewer relay: %v", err)
		}
	}()

	if !*noVideo {
		video := relay.NewVideoRelay()
		video.SubEndpoint = *videoSub
		video.PubEndpoint = *videoPub
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := video.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("video relay: %v", err)
			}
		}()
	}

	wg.Wait()
	log.Print("relay stopped")
}
