// Command presenced is the demo host embedding the presence-radar core
// pipeline: it opens a UART radar, feeds bytes through internal/pipeline,
// logs zone events through internal/obslog (the standard logger, stderr by
// default), and records zone events plus smoothed occupancy in a local
// sqlite telemetry buffer. It is the concrete, runnable realization of the
// external collaborators spec.md §6 describes only abstractly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/presence-radar/corepipe/internal/clock"
	"github.com/presence-radar/corepipe/internal/obslog"
	"github.com/presence-radar/corepipe/internal/parse"
	"github.com/presence-radar/corepipe/internal/pipeline"
	"github.com/presence-radar/corepipe/internal/telemetry"
	"github.com/presence-radar/corepipe/internal/telemetry/store"
	"github.com/presence-radar/corepipe/internal/tracker"
	"github.com/presence-radar/corepipe/internal/version"
	"github.com/presence-radar/corepipe/internal/zones"
)

var (
	portFlag       = flag.String("port", "/dev/ttyUSB0", "serial port the radar is attached to")
	baudFlag       = flag.Int("baud", 115200, "serial baud rate")
	dialectFlag    = flag.String("dialect", "tracking", "radar wire dialect: tracking or presence")
	zoneMapFlag    = flag.String("zones", "", "path to a zone map JSON file")
	tuningFlag     = flag.String("tuning", "", "path to an optional tuning JSON file")
	dbPathFlag     = flag.String("db", "presenced.db", "path to the sqlite telemetry database")
	gateBaseFlag   = flag.Float64("gate-base-mm", 0, "override gate_base_mm (0 keeps tuning/default)")
	versionFlag    = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("presenced %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	sessionID := uuid.NewString()
	obslog.Logf("presenced starting: session=%s port=%s dialect=%s", sessionID, *portFlag, *dialectFlag)

	tuning := pipeline.EmptyTuningConfig()
	if *tuningFlag != "" {
		loaded, err := pipeline.LoadTuningConfig(*tuningFlag)
		if err != nil {
			obslog.Logf("presenced: tuning config load failed, using defaults: %v", err)
		} else {
			tuning = loaded
		}
	}

	dialect, err := parseDialect(*dialectFlag)
	if err != nil {
		obslog.Logf("presenced: %v", err)
		os.Exit(1)
	}

	dbStore, err := store.Open(*dbPathFlag, sessionID)
	if err != nil {
		obslog.Logf("presenced: telemetry store: %v", err)
		os.Exit(1)
	}
	defer dbStore.Close()

	agg := telemetry.NewAggregator()
	pub := &hostPublisher{store: dbStore, agg: agg, clock: clock.Real{}}

	trackerCfg := tracker.DefaultConfig()
	if *gateBaseFlag > 0 {
		trackerCfg.GateBaseMM = float32(*gateBaseFlag)
	} else {
		trackerCfg.GateBaseMM = float32(tuning.GetGateBaseMM())
	}
	trackerCfg.ConfirmThreshold = tuning.GetConfirmThreshold()
	trackerCfg.TentativeDrop = tuning.GetTentativeDrop()
	trackerCfg.OcclusionTimeoutFrames = tuning.GetOcclusionTimeoutFrames()

	p := pipeline.New(dialect, trackerCfg, uint32(tuning.GetDisconnectTimeoutMS()), pub)
	p.SetHoldBounds(uint32(tuning.GetMinHoldMS()), uint32(tuning.GetMaxHoldMS()))
	p.SetMovingThreshold(tuning.GetMovingThresholdMMPS())

	if *zoneMapFlag != "" {
		zm, err := loadZoneMapFile(*zoneMapFlag)
		if err != nil {
			obslog.Logf("presenced: %v", err)
			os.Exit(1)
		}
		if err := p.LoadZones(zm); err != nil {
			obslog.Logf("presenced: zone map rejected: %v", err)
			os.Exit(1)
		}
		for _, z := range zm.Zones {
			sens := tuning.GetDefaultSensitivity()
			if z.Sensitivity > 0 {
				sens = int(z.Sensitivity)
			}
			if err := p.SetSensitivity(z.ID, uint8(sens)); err != nil {
				obslog.Logf("presenced: sensitivity for zone %q: %v", z.ID, err)
			}
		}
	}

	port, err := openRadarPort(*portFlag, *baudFlag)
	if err != nil {
		obslog.Logf("presenced: open serial port %q: %v", *portFlag, err)
		os.Exit(1)
	}
	defer port.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	watchdogTicker := time.NewTicker(200 * time.Millisecond)
	defer watchdogTicker.Stop()

	readErrs := make(chan error, 1)
	chunks := make(chan []byte, 16)
	go readLoop(port, chunks, readErrs)

	buf := make([]byte, 0, 256)
	for {
		select {
		case <-ctx.Done():
			obslog.Logf("presenced: shutting down: %v", ctx.Err())
			return
		case err := <-readErrs:
			obslog.Logf("presenced: serial read error: %v", err)
			return
		case chunk := <-chunks:
			buf = append(buf, chunk...)
			nowMS := uint32(time.Since(start).Milliseconds())
			p.Feed(buf, nowMS)
			buf = buf[:0]
		case <-watchdogTicker.C:
			nowMS := uint32(time.Since(start).Milliseconds())
			p.CheckWatchdog(nowMS)
		}
	}
}

func parseDialect(name string) (parse.Dialect, error) {
	switch name {
	case "tracking":
		return parse.Tracking, nil
	case "presence":
		return parse.Presence, nil
	default:
		return 0, fmt.Errorf("unknown dialect %q (want tracking or presence)", name)
	}
}

func readLoop(port interface {
	Read(p []byte) (int, error)
}, out chan<- []byte, errs chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		out <- chunk
	}
}
