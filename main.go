// ABOUTME: Entry point for the cast bridge
// ABOUTME: Wires config, discovery, media server, controller, and UI
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harperreed/castbridge/internal/announce"
	"github.com/harperreed/castbridge/internal/app"
	"github.com/harperreed/castbridge/internal/config"
	"github.com/harperreed/castbridge/internal/discovery"
	"github.com/harperreed/castbridge/internal/native"
	"github.com/harperreed/castbridge/internal/playlist"
	"github.com/harperreed/castbridge/internal/protocol"
	"github.com/harperreed/castbridge/internal/server"
	"github.com/harperreed/castbridge/internal/ui"
	"github.com/harperreed/castbridge/internal/upnp"
	"github.com/harperreed/castbridge/internal/version"
)

var (
	configPath  = flag.String("config", "castbridge.yaml", "Config file path")
	port        = flag.Int("port", -1, "Media server port (overrides config)")
	musicDir    = flag.String("music", "", "Music directory to scan (overrides config)")
	netIface    = flag.String("interface", "", "Interface for share URLs (overrides config)")
	logFile     = flag.String("log-file", "", "Log file path (overrides config)")
	noTUI       = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port >= 0 {
		cfg.MediaPort = *port
	}
	if *musicDir != "" {
		cfg.MusicDir = *musicDir
	}
	if *netIface != "" {
		cfg.PrimaryInterface = *netIface
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: the screen owns the terminal, logs go to the file.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("starting %s %s", version.Product, version.Version)

	pl := playlist.New()
	pl.SetMode(playlist.ParseMode(cfg.Mode))
	if cfg.MusicDir != "" {
		tracks, err := playlist.ScanDirectory(cfg.MusicDir)
		if err != nil {
			log.Fatalf("scan %s: %v", cfg.MusicDir, err)
		}
		for _, t := range tracks {
			pl.Add(t)
		}
		log.Printf("queued %d tracks from %s", len(tracks), cfg.MusicDir)
	}

	client := upnp.NewClient(10 * time.Second)

	// The controller and media server reference each other: the server
	// snapshots controller state, the controller shares files through the
	// server. Both closures resolve after construction, before Start.
	var ctrl *app.Controller

	srv := server.New(server.Config{
		Port:             cfg.MediaPort,
		PrimaryInterface: cfg.PrimaryInterface,
		StateFunc: func() protocol.StateSnapshot {
			return ctrl.Snapshot()
		},
	})

	disc := discovery.New(discovery.Config{
		SearchTarget: cfg.SearchTarget,
		OnDeviceAdded: func(d discovery.Device) {
			log.Printf("renderer found: %s (%s)", d.FriendlyName, d.ModelName)
			srv.Broadcast(protocol.NewDeviceAddedEvent(protocol.DeviceInfo{
				ID:           d.ID,
				Name:         d.FriendlyName,
				Manufacturer: d.Manufacturer,
				Model:        d.ModelName,
				Location:     d.Location,
			}))
		},
	})

	ctrl = app.New(app.Config{
		Playlist:   pl,
		Native:     native.New(),
		Devices:    disc,
		Sharer:     srv,
		Client:     client,
		BitPerfect: cfg.BitPerfect,
		OnChange: func() {
			srv.Broadcast(protocol.NewStateEvent(ctrl.Snapshot()))
		},
	})

	if err := srv.Start(); err != nil {
		log.Fatalf("media server: %v", err)
	}
	if err := disc.Start(); err != nil {
		// Discovery needs multicast; local playback works without it.
		log.Printf("discovery unavailable: %v", err)
	}

	if err := ctrl.SetVolume(cfg.Volume); err != nil {
		log.Printf("initial volume: %v", err)
	}

	var ann *announce.Announcer
	if cfg.Announce {
		ann, err = announce.Start("", srv.Port())
		if err != nil {
			log.Printf("announce unavailable: %v", err)
		}
	}

	if useTUI {
		if err := ui.Run(ctrl); err != nil {
			log.Printf("ui: %v", err)
		}
	} else {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Printf("shutdown signal received")
	}

	if err := ctrl.Shutdown(); err != nil {
		log.Printf("controller shutdown: %v", err)
	}
	ann.Stop()
	disc.Stop()
	srv.Stop()
	log.Printf("stopped")
}
