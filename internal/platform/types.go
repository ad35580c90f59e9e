package platform

import "time"

// SearchHit is a lightweight candidate summary returned by a discovery query.
// It carries only what the search endpoint provides; durations and engagement
// stats require a follow-up detail lookup.
type SearchHit struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channel_id"`
	ChannelTitle string    `json:"channel_title"`
	PublishedAt  time.Time `json:"published_at"`
}

// Candidate is a fully hydrated video candidate ready for funnel evaluation.
type Candidate struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	ChannelID       string    `json:"channel_id"`
	ChannelTitle    string    `json:"channel_title"`
	PublishedAt     time.Time `json:"published_at"`
	DurationSeconds int       `json:"duration_seconds"`
	ViewCount       uint64    `json:"view_count"`
	LikeCount       uint64    `json:"like_count"`
}
