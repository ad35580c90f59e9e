package funnel

import "github.com/jonathan/video-curator/internal/platform"

// Engagement weights. Views dominate; the like ratio and the duration
// sweet-spot refine within a view tier.
const (
	weightViews    = 0.4
	weightLikes    = 0.3
	weightDuration = 0.3

	sweetSpotMinSeconds = 8 * 60
	sweetSpotMaxSeconds = 30 * 60
)

// QualityScore derives a 0..1 score from engagement signals: a view-count
// tier, the like-to-view ratio, and whether the duration falls in the
// instructional sweet spot.
func QualityScore(c platform.Candidate) float64 {
	return weightViews*viewTierScore(c.ViewCount) +
		weightLikes*likeRatioScore(c.LikeCount, c.ViewCount) +
		weightDuration*durationScore(c.DurationSeconds)
}

func viewTierScore(views uint64) float64 {
	switch {
	case views >= 100_000:
		return 1.0
	case views >= 10_000:
		return 0.75
	case views >= 1_000:
		return 0.5
	case views >= 100:
		return 0.25
	default:
		return 0
	}
}

func likeRatioScore(likes, views uint64) float64 {
	if views == 0 {
		return 0
	}
	ratio := float64(likes) / float64(views)
	switch {
	case ratio >= 0.04:
		return 1.0
	case ratio >= 0.02:
		return 0.7
	case ratio >= 0.01:
		return 0.4
	default:
		return 0
	}
}

func durationScore(seconds int) float64 {
	if seconds >= sweetSpotMinSeconds && seconds <= sweetSpotMaxSeconds {
		return 1.0
	}
	return 0.4
}
