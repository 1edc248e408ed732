package benchmarks

// Бенчмарки геопространственных операций зонной подписки
//
// Ожидаемые результаты:
// - Zone (precision 6): < 200 ns/op
// - Distance: < 100 ns/op, 0 allocs/op
// - Cover (25km): < 1 ms/op
// - Matches (30 zones): < 2µs/op

import (
	"math/rand"
	"testing"

	"github.com/arvista/argate-backend/internal/geo"
)

func BenchmarkZone(b *testing.B) {
	for i := 0; i < b.N; i++ {
		geo.Zone(46.5, 8.25, 6)
	}
}

func BenchmarkDistance(b *testing.B) {
	for i := 0; i < b.N; i++ {
		geo.Distance(46.0, 8.0, 46.5, 8.5)
	}
}

func BenchmarkCover(b *testing.B) {
	radii := []float64{10, 25, 50}

	for i := 0; i < b.N; i++ {
		geo.Cover(46.5, 8.25, radii[i%len(radii)], 0)
	}
}

func BenchmarkMatches(b *testing.B) {
	zones := geo.Cover(46.5, 8.25, 25, 0)
	rng := rand.New(rand.NewSource(7))

	points := make([][2]float64, 100)
	for i := range points {
		points[i] = [2]float64{45.0 + rng.Float64()*3, 6.0 + rng.Float64()*5}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := points[i%len(points)]
		geo.Matches(zones, p[0], p[1])
	}
}
