// Package platform wraps the YouTube Data API v3 for candidate discovery.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Client wraps the YouTube Data API service.
type Client struct {
	svc *youtube.Service
}

// NewClient creates a new platform client. Extra options are appended after
// the API key, so tests can override the endpoint with option.WithEndpoint.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := youtube.NewService(ctx, all...)
	if err != nil {
		return nil, fmt.Errorf("failed to create youtube service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// SearchChannel runs a discovery query scoped to a single channel.
func (c *Client) SearchChannel(ctx context.Context, channelID, query string, max int64) ([]SearchHit, error) {
	call := c.svc.Search.List([]string{"id", "snippet"}).
		Context(ctx).
		ChannelId(channelID).
		Q(query).
		Type("video").
		VideoDuration("medium").
		Order("date").
		MaxResults(max)
	return c.doSearch(call)
}

// SearchTopic runs a generic topic discovery query.
func (c *Client) SearchTopic(ctx context.Context, query string, max int64) ([]SearchHit, error) {
	call := c.svc.Search.List([]string{"id", "snippet"}).
		Context(ctx).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(max)
	return c.doSearch(call)
}

func (c *Client) doSearch(call *youtube.SearchListCall) ([]SearchHit, error) {
	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]SearchHit, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		hit := SearchHit{
			VideoID:      item.Id.VideoId,
			Title:        item.Snippet.Title,
			ChannelID:    item.Snippet.ChannelId,
			ChannelTitle: item.Snippet.ChannelTitle,
		}
		if t, err := parseTimestamp(item.Snippet.PublishedAt); err == nil {
			hit.PublishedAt = t
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// VideoDetails hydrates candidates with duration and engagement stats.
// The API accepts up to 50 ids per call; callers stay well under that.
func (c *Client) VideoDetails(ctx context.Context, ids []string) ([]Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	resp, err := c.svc.Videos.List([]string{"snippet", "contentDetails", "statistics"}).
		Context(ctx).
		Id(ids...).
		Do()
	if err != nil {
		return nil, fmt.Errorf("video detail lookup failed: %w", err)
	}

	candidates := make([]Candidate, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet == nil {
			continue
		}
		cand := Candidate{
			VideoID:      item.Id,
			Title:        item.Snippet.Title,
			ChannelID:    item.Snippet.ChannelId,
			ChannelTitle: item.Snippet.ChannelTitle,
		}
		if t, err := parseTimestamp(item.Snippet.PublishedAt); err == nil {
			cand.PublishedAt = t
		}
		if item.ContentDetails != nil {
			secs, err := ParseDuration(item.ContentDetails.Duration)
			if err == nil {
				cand.DurationSeconds = secs
			}
		}
		if item.Statistics != nil {
			cand.ViewCount = item.Statistics.ViewCount
			cand.LikeCount = item.Statistics.LikeCount
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// Probe performs the cheapest possible real API call (a single-id detail
// lookup, 1 unit). The quota tracker uses it to verify a suspected-stale
// exhaustion flag against the platform's actual state.
func (c *Client) Probe(ctx context.Context) error {
	// A stable, well-known video id; the response content is irrelevant.
	_, err := c.svc.Videos.List([]string{"id"}).
		Context(ctx).
		Id("dQw4w9WgXcQ").
		MaxResults(1).
		Do()
	return err
}

// quotaReasons are the structured error reasons the platform uses to signal
// that the daily allowance is spent. Per-second rate limiting reasons are
// deliberately excluded; those are transient.
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

// IsQuotaError reports whether err is the platform's quota-exceeded signal.
// Any other API error is treated as transient by callers.
func IsQuotaError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, e := range apiErr.Errors {
		if quotaReasons[e.Reason] {
			return true
		}
	}
	// Some quota failures come back with an empty Errors slice but a
	// recognizable message.
	return apiErr.Code == 403 && strings.Contains(strings.ToLower(apiErr.Message), "quota")
}
