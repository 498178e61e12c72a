// Command scan-plot renders one range scan to a PNG (or an HTML scatter when
// the output ends in .html). The scan comes from a capture database or from
// the /api/scan endpoint of a running rangescan.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/rangescan/internal/httputil"
	"github.com/banshee-data/rangescan/internal/lidar/lidardb"
	"github.com/banshee-data/rangescan/internal/lidar/monitor"
	"github.com/banshee-data/rangescan/internal/lidar/publish"
)

type options struct {
	DBPath string
	ScanID int64 // 0 selects the most recent scan
	URL    string
	Out    string
	SizePx int
}

func main() {
	var o options
	flag.StringVar(&o.DBPath, "db", "", "Capture database to read the scan from")
	flag.Int64Var(&o.ScanID, "scan", 0, "Scan id in the database (0 = latest)")
	flag.StringVar(&o.URL, "url", "", "Base URL of a running rangescan, e.g. http://localhost:8080")
	flag.StringVar(&o.Out, "out", "scan.png", "Output file (.png or .html)")
	flag.IntVar(&o.SizePx, "size", 800, "Image size in pixels")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := httputil.NewStandardClient(&http.Client{Timeout: 10 * time.Second})
	if err := run(ctx, o, client); err != nil {
		log.Fatalf("scan-plot: %v", err)
	}
	log.Printf("wrote %s", o.Out)
}

func run(ctx context.Context, o options, client httputil.HTTPClient) error {
	if (o.DBPath == "") == (o.URL == "") {
		return errors.New("exactly one of -db or -url is required")
	}
	if o.SizePx <= 0 {
		return fmt.Errorf("invalid -size %d", o.SizePx)
	}

	var (
		scan *publish.LaserScan
		err  error
	)
	if o.DBPath != "" {
		scan, err = loadFromDB(o.DBPath, o.ScanID)
	} else {
		scan, err = fetchLatest(ctx, client, o.URL)
	}
	if err != nil {
		return err
	}

	f, err := os.Create(o.Out)
	if err != nil {
		return err
	}
	if strings.EqualFold(filepath.Ext(o.Out), ".html") {
		err = monitor.RenderPolarHTML(f, scan)
	} else {
		err = monitor.RenderPolarPNG(f, scan, vg.Length(o.SizePx)*vg.Inch/96)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func loadFromDB(path string, id int64) (*publish.LaserScan, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := lidardb.OpenDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var rec *lidardb.ScanRecord
	if id > 0 {
		rec, err = db.GetScan(id)
	} else {
		rec, err = db.LatestScan()
	}
	if err != nil {
		return nil, err
	}
	return &rec.Scan, nil
}

func fetchLatest(ctx context.Context, client httputil.HTTPClient, base string) (*publish.LaserScan, error) {
	var scan publish.LaserScan
	if err := httputil.GetJSON(ctx, client, strings.TrimRight(base, "/")+"/api/scan", &scan); err != nil {
		return nil, fmt.Errorf("fetch latest scan: %w", err)
	}
	if len(scan.Ranges) == 0 {
		return nil, publish.ErrEmptyScan
	}
	return &scan, nil
}
