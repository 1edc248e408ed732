// Package geo содержит геопространственные помощники для зонной подписки
// клиентов: регион интереса покрывается набором geohash-ячеек, и события
// целей маршрутизируются по ячейке якоря
package geo

import (
	"math"

	"github.com/mmcloughlin/geohash"
)

const earthRadiusKm = 6371.0

// Приблизительный размер ячейки geohash по точности, км
var precisionCellKm = map[int]float64{
	1: 5000.0,
	2: 1250.0,
	3: 156.0,
	4: 39.1,
	5: 4.89,
	6: 1.22,
	7: 0.153,
	8: 0.0382,
	9: 0.00477,
}

const maxPrecision = 9

// OptimalPrecision подбирает точность geohash, при которой ячейка
// составляет примерно четверть радиуса региона
func OptimalPrecision(radiusKm float64) int {
	target := radiusKm / 4.0

	for precision := 1; precision <= maxPrecision; precision++ {
		if precisionCellKm[precision] <= target {
			return precision
		}
	}

	return maxPrecision
}

// Zone возвращает geohash-ячейку точки с заданной точностью
func Zone(lat, lon float64, precision int) string {
	return geohash.EncodeWithPrecision(lat, lon, uint(precision))
}

// Cover возвращает набор geohash-ячеек, покрывающих круг.
// При precision <= 0 точность подбирается по радиусу
func Cover(centerLat, centerLon, radiusKm float64, precision int) []string {
	if precision <= 0 {
		precision = OptimalPrecision(radiusKm)
	}

	radiusDeg := radiusKm / 111.0
	lonScale := math.Cos(centerLat * math.Pi / 180)
	if lonScale < 0.01 {
		lonScale = 0.01
	}

	minLat := centerLat - radiusDeg
	maxLat := centerLat + radiusDeg
	minLon := centerLon - radiusDeg/lonScale
	maxLon := centerLon + radiusDeg/lonScale

	cellDeg := precisionCellKm[precision] / 111.0

	zones := make(map[string]struct{})
	for lat := minLat; lat <= maxLat; lat += cellDeg {
		for lon := minLon; lon <= maxLon; lon += cellDeg {
			if Distance(centerLat, centerLon, lat, lon) > radiusKm {
				continue
			}
			gh := geohash.EncodeWithPrecision(lat, lon, uint(precision))
			zones[gh] = struct{}{}

			// Соседи добавляются для полноты покрытия на границах ячеек
			for _, neighbor := range geohash.Neighbors(gh) {
				nlat, nlon := geohash.DecodeCenter(neighbor)
				if Distance(centerLat, centerLon, nlat, nlon) <= radiusKm {
					zones[neighbor] = struct{}{}
				}
			}
		}
	}

	result := make([]string, 0, len(zones))
	for gh := range zones {
		result = append(result, gh)
	}
	return result
}

// Matches сообщает, попадает ли ячейка точки в одну из зон подписки.
// Сравнение по префиксу: зона более грубой точности накрывает вложенные
func Matches(zones []string, lat, lon float64) bool {
	cell := geohash.EncodeWithPrecision(lat, lon, maxPrecision)
	for _, zone := range zones {
		if len(zone) <= len(cell) && cell[:len(zone)] == zone {
			return true
		}
	}
	return false
}

// Distance расстояние между точками по формуле гаверсинусов, км
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}
