// Command rangescan captures range scans from a serial rotating rangefinder
// and publishes them over gRPC and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/rangescan/internal/config"
	"github.com/banshee-data/rangescan/internal/lidar/capture"
	"github.com/banshee-data/rangescan/internal/lidar/lidardb"
	"github.com/banshee-data/rangescan/internal/lidar/monitor"
	"github.com/banshee-data/rangescan/internal/lidar/publish"
	"github.com/banshee-data/rangescan/internal/lidar/recorder"
	"github.com/banshee-data/rangescan/internal/lidar/scanbus"
	"github.com/banshee-data/rangescan/internal/lidar/synthetic"
	"github.com/banshee-data/rangescan/internal/monitoring"
	"github.com/banshee-data/rangescan/internal/serialport"
	"github.com/banshee-data/rangescan/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON or YAML capture config")
	port        = flag.String("port", "", "Serial port (overrides config)")
	baud        = flag.Int("baud", 0, "Baud rate (overrides config)")
	listen      = flag.String("listen", "", "HTTP listen address (overrides config)")
	grpcListen  = flag.String("grpc-listen", "", "gRPC listen address (overrides config)")
	dbPath      = flag.String("db", "", "Store sampled scans in this sqlite database (overrides config)")
	recordPath  = flag.String("record", "", "Record raw frames to this pcap file (overrides config)")
	replayPath  = flag.String("replay", "", "Replay frames from a pcap file instead of a serial port")
	replaySpeed = flag.Float64("replay-speed", 1.0, "Replay speed multiplier (0 = as fast as possible)")
	devMode     = flag.Bool("dev", false, "Read from a synthetic sensor instead of a serial port")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// sourceOptions selects where capture reads from. Exactly one of Reader,
// Replay, Dev or the configured serial port is used, in that order.
type sourceOptions struct {
	Reader      io.Reader
	Replay      string
	ReplaySpeed float64
	Dev         bool
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		if len(ports) == 0 {
			fmt.Println("no serial ports found")
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := config.EmptyCaptureConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadCaptureConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}
	config.Overrides{
		Port:       *port,
		BaudRate:   *baud,
		HTTPListen: *listen,
		GRPCListen: *grpcListen,
		DBPath:     *dbPath,
		PcapPath:   *recordPath,
	}.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitoring.Logf("%s", version.String())
	err := run(ctx, cfg, sourceOptions{
		Replay:      *replayPath,
		ReplaySpeed: *replaySpeed,
		Dev:         *devMode,
	})
	if err != nil {
		log.Printf("rangescan: %v", err)
		os.Exit(1)
	}
	log.Printf("Graceful shutdown complete")
}

// openSource returns the byte stream to capture from, a description of it
// for status and logs, and a close function.
func openSource(cfg *config.CaptureConfig, opts sourceOptions) (io.Reader, string, func() error, error) {
	noop := func() error { return nil }
	switch {
	case opts.Reader != nil:
		return opts.Reader, "reader", noop, nil
	case opts.Replay != "":
		src, err := recorder.OpenReplay(opts.Replay, recorder.ReplayConfig{SpeedMultiplier: opts.ReplaySpeed})
		if err != nil {
			return nil, "", nil, err
		}
		return src, "replay:" + opts.Replay, src.Close, nil
	case opts.Dev:
		gen := synthetic.New(synthetic.Config{Magic: cfg.GetMagic(), RealTime: true, NoiseBytes: 2})
		return gen, "synthetic", noop, nil
	default:
		portOpts, err := serialport.PortOptions{
			BaudRate: cfg.GetBaudRate(),
			DataBits: cfg.GetDataBits(),
			StopBits: cfg.GetStopBits(),
			Parity:   cfg.GetParity(),
		}.Normalise()
		if err != nil {
			return nil, "", nil, err
		}
		p, err := serialport.RealFactory{ReadTimeout: cfg.GetReadTimeout()}.Open(cfg.GetPort(), portOpts)
		if err != nil {
			return nil, "", nil, fmt.Errorf("failed to open serial port %s: %w", cfg.GetPort(), err)
		}
		monitoring.Logf("[capture] opened %s at %s", cfg.GetPort(), portOpts)
		return p, cfg.GetPort(), p.Close, nil
	}
}

// run wires the capture pipeline and blocks until ctx is cancelled or the
// driver stops on its own. A driver that stops with an error makes run
// return that error.
func run(ctx context.Context, cfg *config.CaptureConfig, opts sourceOptions) (runErr error) {
	src, desc, closeSrc, err := openSource(cfg, opts)
	if err != nil {
		return err
	}
	defer closeSrc()

	captureCfg := capture.Config{
		DataSize:      cfg.GetDataSize(),
		Invert:        cfg.GetInvert(),
		Magic:         cfg.GetMagic(),
		MaxSyncBytes:  cfg.GetMaxSyncBytes(),
		StatsInterval: cfg.GetStatsInterval(),
	}
	if path := cfg.GetPcapPath(); path != "" {
		pw, err := recorder.CreatePcap(path)
		if err != nil {
			return err
		}
		defer pw.Close()
		captureCfg.Observer = pw
	}

	driver, err := capture.New(src, captureCfg)
	if err != nil {
		return err
	}

	bus := scanbus.NewBus(scanbus.Config{ListenAddr: cfg.GetGRPCListen()})
	if err := bus.Start(); err != nil {
		return err
	}
	defer bus.Stop()

	monCfg := monitor.Config{
		Address:  cfg.GetHTTPListen(),
		Driver:   driver,
		Source:   desc,
		BusStats: bus.Stats,
	}
	sinks := []publish.Sink{bus}

	if path := cfg.GetDBPath(); path != "" {
		db, err := lidardb.NewDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		session, err := db.CreateSession(lidardb.SessionInfo{
			Port:     desc,
			BaudRate: cfg.GetBaudRate(),
			Magic:    cfg.GetMagic().String(),
			DataSize: cfg.GetDataSize(),
			Invert:   cfg.GetInvert(),
			Version:  version.Version,
		}, time.Now())
		if err != nil {
			return err
		}
		defer func() {
			reason := "shutdown"
			if runErr != nil {
				reason = runErr.Error()
			}
			if endErr := db.EndSession(session.ID, time.Now(), reason); endErr != nil {
				monitoring.Logf("[lidardb] %v", endErr)
			}
		}()
		rec := lidardb.NewRecorder(db, session.ID, cfg.GetRecordInterval(), nil)
		sinks = append(sinks, rec)
		monCfg.DB = db
		monCfg.SessionID = session.ID
		monCfg.RecorderStats = rec.Stats
	}

	pub := publish.NewPublisher(driver, publish.Config{
		Interval: cfg.GetPublishInterval(),
		Options: publish.Options{
			FrameID:  cfg.GetFrameID(),
			RangeMin: cfg.GetRangeMin(),
			RangeMax: cfg.GetRangeMax(),
		},
	}, sinks...)
	monCfg.PublisherStats = pub.Stats

	mon, err := monitor.NewServer(monCfg)
	if err != nil {
		return err
	}
	pub.AddSink(mon)

	if err := driver.Start(); err != nil {
		return err
	}
	defer driver.Stop()
	if err := pub.Start(); err != nil {
		return err
	}
	defer pub.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-driver.Done():
			if err := driver.Err(); err != nil {
				return fmt.Errorf("capture stopped: %w", err)
			}
			return errors.New("capture stopped")
		case <-gctx.Done():
			return nil
		}
	})
	return g.Wait()
}
