package httpapi

import (
	"github.com/jvkenny/CLFleadservice/internal/config"
	"github.com/jvkenny/CLFleadservice/internal/domain"
)

// mapDefaults is the static presentation config the map client fetches once
// at startup: initial viewport, clustering behavior, and the symbol color
// for each material category.
type mapDefaults struct {
	Center    [2]float64        `json:"center"` // lon, lat
	Zoom      int               `json:"zoom"`
	Cluster   clusterDefaults   `json:"cluster"`
	Symbology map[string]symbol `json:"symbology"`
}

type clusterDefaults struct {
	Enabled bool `json:"enabled"`
	Radius  int  `json:"radius"`
	MaxZoom int  `json:"max_zoom"`
}

type symbol struct {
	Color   string `json:"color"`
	Outline string `json:"outline"`
}

var materialSymbols = map[string]symbol{
	string(domain.CategoryLead):       {Color: "#d73027", Outline: "#7f0000"},
	string(domain.CategoryCopper):     {Color: "#b87333", Outline: "#6e4518"},
	string(domain.CategoryGalvanized): {Color: "#fdae61", Outline: "#a16207"},
	string(domain.CategoryUnknown):    {Color: "#878787", Outline: "#4d4d4d"},
	string(domain.CategoryOther):      {Color: "#4575b4", Outline: "#313695"},
}

func newMapDefaults(cfg *config.Config) mapDefaults {
	return mapDefaults{
		Center: [2]float64{cfg.DefaultCenterLon, cfg.DefaultCenterLat},
		Zoom:   cfg.DefaultZoom,
		Cluster: clusterDefaults{
			Enabled: cfg.ClusterEnabled,
			Radius:  cfg.ClusterRadius,
			MaxZoom: cfg.ClusterMaxZoom,
		},
		Symbology: materialSymbols,
	}
}
