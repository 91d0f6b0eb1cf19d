package http

import (
	"fmt"
	"math"
	"net/url"

	"etaengine/geo"
)

// 路线图SVG画布尺寸
const (
	mapWidth   = 400.0
	mapHeight  = 240.0
	mapPadding = 30.0
)

// RouteView 两点直线路线的展示数据，坐标为SVG画布坐标
type RouteView struct {
	From       geo.Point `json:"from"`
	To         geo.Point `json:"to"`
	DistanceKM float64   `json:"distance_km"`
	X1         float64   `json:"x1"`
	Y1         float64   `json:"y1"`
	X2         float64   `json:"x2"`
	Y2         float64   `json:"y2"`
	MapURL     string    `json:"map_url"`
}

// NewRouteView 以等距圆柱投影把两点放入画布，北向上，保持纵横比
func NewRouteView(from, to geo.Point) RouteView {
	view := RouteView{
		From:       from,
		To:         to,
		DistanceKM: from.DistanceTo(to),
		MapURL:     osmURL(from, to),
	}

	midLat := (from.Lat + to.Lat) / 2 * math.Pi / 180
	dx := (to.Lon - from.Lon) * math.Cos(midLat)
	dy := to.Lat - from.Lat

	scale := math.Inf(1)
	if dx != 0 {
		scale = math.Min(scale, (mapWidth-2*mapPadding)/math.Abs(dx))
	}
	if dy != 0 {
		scale = math.Min(scale, (mapHeight-2*mapPadding)/math.Abs(dy))
	}
	if math.IsInf(scale, 1) || math.IsNaN(scale) {
		scale = 0
	}

	cx, cy := mapWidth/2, mapHeight/2
	view.X1 = round2(cx - dx/2*scale)
	view.Y1 = round2(cy + dy/2*scale)
	view.X2 = round2(cx + dx/2*scale)
	view.Y2 = round2(cy - dy/2*scale)
	return view
}

func osmURL(from, to geo.Point) string {
	q := url.Values{}
	q.Set("engine", "fossgis_osrm_car")
	q.Set("route", fmt.Sprintf("%.5f,%.5f;%.5f,%.5f", from.Lat, from.Lon, to.Lat, to.Lon))
	return "https://www.openstreetmap.org/directions?" + q.Encode()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
