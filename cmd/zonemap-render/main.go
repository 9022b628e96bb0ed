// Command zonemap-render is an offline debugging tool: it renders a
// ZoneMap's polygons plus a recorded TrackFrame sequence as an HTML
// scatter plot, in the same go-echarts style the teacher uses for its
// LiDAR debug dashboards (internal/lidar/monitor/echarts_handlers.go). It
// is not on the hot path and never touches the core pipeline directly —
// it only reads the JSON files the host would otherwise feed it live.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/presence-radar/corepipe/internal/zones"
)

var (
	zoneMapFlag = flag.String("zones", "", "path to a zone map JSON file")
	tracksFlag  = flag.String("tracks", "", "path to a recorded track-frame sequence JSON file")
	outFlag     = flag.String("out", "zonemap.html", "output HTML path")
)

// trackFrameDoc mirrors the shape a host would record from
// tracker.Frame/pipeline.Tick: one entry per tick, each carrying the
// tracks visible that tick.
type trackFrameDoc struct {
	TimestampMS uint32          `json:"timestamp_ms"`
	Tracks      []trackPointDoc `json:"tracks"`
}

type trackPointDoc struct {
	TrackID uint8 `json:"track_id"`
	XMM     int32 `json:"x_mm"`
	YMM     int32 `json:"y_mm"`
}

func main() {
	flag.Parse()

	if *zoneMapFlag == "" {
		fmt.Fprintln(os.Stderr, "zonemap-render: -zones is required")
		os.Exit(1)
	}

	zm, err := loadZoneMap(*zoneMapFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zonemap-render: %v\n", err)
		os.Exit(1)
	}

	var frames []trackFrameDoc
	if *tracksFlag != "" {
		frames, err = loadTrackFrames(*tracksFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "zonemap-render: %v\n", err)
			os.Exit(1)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Zone Map", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Zone Map + Track Trail", Subtitle: fmt.Sprintf("zones=%d ticks=%d", len(zm.Zones), len(frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -6000, Max: 6000, Name: "X (mm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 6000, Name: "Y (mm)", NameLocation: "middle", NameGap: 30}),
	)

	zoneColors := []string{"#26828e", "#ff5252", "#fde725", "#6ece58", "#482777"}
	for i, z := range zm.Zones {
		data := make([]opts.ScatterData, 0, len(z.Vertices)+1)
		for _, v := range z.Vertices {
			data = append(data, opts.ScatterData{Value: []interface{}{v.X, v.Y}})
		}
		if len(z.Vertices) > 0 {
			data = append(data, opts.ScatterData{Value: []interface{}{z.Vertices[0].X, z.Vertices[0].Y}})
		}
		name := fmt.Sprintf("%s (%s)", z.ID, typeName(z.Type))
		color := zoneColors[i%len(zoneColors)]
		scatter.AddSeries(name, data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: color}),
		)
	}

	trails := make(map[uint8][]opts.ScatterData)
	var order []uint8
	for _, f := range frames {
		for _, t := range f.Tracks {
			if _, ok := trails[t.TrackID]; !ok {
				order = append(order, t.TrackID)
			}
			trails[t.TrackID] = append(trails[t.TrackID], opts.ScatterData{Value: []interface{}{t.XMM, t.YMM}})
		}
	}
	trackColors := []string{"#9e9e9e", "#e91e63", "#03a9f4"}
	for i, id := range order {
		scatter.AddSeries(fmt.Sprintf("track %d", id), trails[id],
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: trackColors[i%len(trackColors)]}),
		)
	}

	f, err := os.Create(*outFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "zonemap-render: create %q: %v\n", *outFlag, err)
		os.Exit(1)
	}
	defer f.Close()

	if err := scatter.Render(f); err != nil {
		fmt.Fprintf(os.Stderr, "zonemap-render: render: %v\n", err)
		os.Exit(1)
	}
}

func typeName(t zones.Type) string {
	if t == zones.Exclude {
		return "exclude"
	}
	return "include"
}

type zoneMapDoc struct {
	Version uint32    `json:"version"`
	Zones   []zoneDoc `json:"zones"`
}

type zoneDoc struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Sensitivity uint8      `json:"sensitivity"`
	Vertices    [][2]int32 `json:"vertices_mm"`
}

func loadZoneMap(path string) (zones.ZoneMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return zones.ZoneMap{}, fmt.Errorf("read zone map %q: %w", path, err)
	}
	var doc zoneMapDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return zones.ZoneMap{}, fmt.Errorf("parse zone map %q: %w", path, err)
	}
	zm := zones.ZoneMap{Version: doc.Version}
	for _, zd := range doc.Zones {
		typ := zones.Include
		if zd.Type == "exclude" {
			typ = zones.Exclude
		}
		verts := make([]zones.Point, len(zd.Vertices))
		for i, v := range zd.Vertices {
			verts[i] = zones.Point{X: v[0], Y: v[1]}
		}
		zm.Zones = append(zm.Zones, zones.Zone{
			ID:          zd.ID,
			Name:        zd.Name,
			Type:        typ,
			Vertices:    verts,
			Sensitivity: zd.Sensitivity,
		})
	}
	return zm, nil
}

func loadTrackFrames(path string) ([]trackFrameDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track frames %q: %w", path, err)
	}
	var frames []trackFrameDoc
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, fmt.Errorf("parse track frames %q: %w", path, err)
	}
	return frames, nil
}
