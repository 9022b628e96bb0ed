package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/presence-radar/corepipe/internal/zones"
)

// zoneMapDoc is the on-disk JSON realization of spec.md §6's zone-map wire
// contract: ASCII id/name, a type string, integer-millimetre vertices, and
// a sensitivity percentage. It is translated into a zones.ZoneMap before
// being handed to the core, which never touches a filesystem itself.
type zoneMapDoc struct {
	Version uint32     `json:"version"`
	Zones   []zoneDoc  `json:"zones"`
}

type zoneDoc struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"` // "include" or "exclude"
	Sensitivity uint8       `json:"sensitivity"`
	Vertices    [][2]int32  `json:"vertices_mm"`
}

func loadZoneMapFile(path string) (zones.ZoneMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return zones.ZoneMap{}, fmt.Errorf("presenced: read zone map %q: %w", path, err)
	}
	var doc zoneMapDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return zones.ZoneMap{}, fmt.Errorf("presenced: parse zone map %q: %w", path, err)
	}

	zm := zones.ZoneMap{Version: doc.Version}
	for _, zd := range doc.Zones {
		var typ zones.Type
		switch zd.Type {
		case "include", "":
			typ = zones.Include
		case "exclude":
			typ = zones.Exclude
		default:
			return zones.ZoneMap{}, fmt.Errorf("presenced: zone %q has unknown type %q", zd.ID, zd.Type)
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
