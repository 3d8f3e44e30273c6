package matching

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/talaqi/talaqi/internal/similarity"
	"github.com/talaqi/talaqi/internal/store"
	"github.com/talaqi/talaqi/internal/textnorm"
)

const earthRadiusKm = 6371.0

// textScore compares stored item embeddings. When either side has no vector
// yet it falls back to token overlap of title and description.
func textScore(lost, found *store.Report, lostVec, foundVec []float32) (float64, string) {
	if len(lostVec) > 0 && len(foundVec) > 0 {
		return similarity.Clamp01(similarity.Cosine(lostVec, foundVec)), "embedding cosine"
	}

	a := textnorm.Tokens(lost.Title + " " + lost.Description)
	b := textnorm.Tokens(found.Title + " " + found.Description)
	return textnorm.Jaccard(a, b), "token overlap, embedding missing"
}

func (e *Engine) imageScore(ctx context.Context, lost, found *store.Report) (float64, string) {
	if lost.ImageRef == "" || found.ImageRef == "" {
		return 0, "image missing"
	}
	if e.images == nil {
		return 0, "no image feature source"
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	a, err := e.images.Features(callCtx, lost.ImageRef)
	if err != nil {
		return 0, fmt.Sprintf("lost image features: %v", err)
	}

	b, err := e.images.Features(callCtx, found.ImageRef)
	if err != nil {
		return 0, fmt.Sprintf("found image features: %v", err)
	}

	return similarity.Clamp01(similarity.Cosine(a, b)), "feature cosine"
}

func (e *Engine) locationScore(lost, found store.Location) (float64, string) {
	if lost.HasCoordinates() && found.HasCoordinates() {
		km := haversineKm(*lost.Latitude, *lost.Longitude, *found.Latitude, *found.Longitude)
		return math.Max(0, 1-km/e.cfg.MaxDistanceKm), fmt.Sprintf("%.1f km apart", km)
	}

	if city := textnorm.Normalize(lost.City); city != "" && city == textnorm.Normalize(found.City) {
		return 1, "same city"
	}

	if gov := textnorm.Normalize(lost.Governorate); gov != "" && gov == textnorm.Normalize(found.Governorate) {
		return e.cfg.GovernorateScore, "same governorate"
	}

	return 0, "different area"
}

// dateScore decays linearly from the loss date. An item can't be found
// before it was lost, beyond the grace period for timezone and entry slop.
func (e *Engine) dateScore(lost, found time.Time) (float64, string) {
	if lost.IsZero() || found.IsZero() {
		return 0, "date missing"
	}

	elapsed := found.Sub(lost)
	if elapsed < -e.cfg.DateGrace {
		return 0, "found before lost"
	}
	if elapsed < 0 {
		elapsed = 0
	}

	days := elapsed.Hours() / 24
	return math.Max(0, 1-days/e.cfg.DateWindowDays), fmt.Sprintf("%.1f days apart", days)
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
