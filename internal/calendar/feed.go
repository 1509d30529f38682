package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"rental-thermostat-backend/config"
	"rental-thermostat-backend/internal/parse"
)

// feedResponse models the paged JSON envelope the booking feeds return.
type feedResponse struct {
	Code int `json:"code"`
	Data struct {
		Page     int              `json:"page"`
		PageSize int              `json:"pageSize"`
		Total    int              `json:"total"`
		Items    []map[string]any `json:"items"`
	} `json:"data"`
}

// FeedSource fetches booking events from a paged JSON feed over HTTP.
type FeedSource struct {
	cfg    config.CalendarSourceConfig
	client *http.Client
	loc    *time.Location
	logger zerolog.Logger
}

// NewFeedSource creates a calendar source for one configured feed.
func NewFeedSource(cfg config.CalendarSourceConfig, logger zerolog.Logger) (*FeedSource, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q for source %s: %w", cfg.Timezone, cfg.ID, err)
	}

	return &FeedSource{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		loc:    loc,
		logger: logger.With().Str("component", "calendar").Str("source_id", cfg.ID).Logger(),
	}, nil
}

// ID returns the configured source identifier.
func (s *FeedSource) ID() string {
	return s.cfg.ID
}

// FetchEvents pulls all pages of events for a property. Any transport or
// payload failure is reported as ErrUnavailable.
func (s *FeedSource) FetchEvents(ctx context.Context, propertyID int64, since time.Time) ([]parse.RawEvent, error) {
	var events []parse.RawEvent
	total := 1
	pageSize := s.cfg.PageSize

	for page := 1; (page-1)*pageSize < total; page++ {
		resp, err := s.fetchPage(ctx, propertyID, since, page)
		if err != nil {
			s.logger.Warn().Err(err).Int("page", page).Msg("calendar fetch failed")
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if resp.Data.Total == 0 || len(resp.Data.Items) == 0 {
			break
		}
		total = resp.Data.Total

		for _, item := range resp.Data.Items {
			ev, err := parse.ParseEvent(item, s.loc)
			if err != nil {
				// One bad record is a feed defect, not a reason to drop the
				// whole sync.
				s.logger.Warn().Err(err).Msg("skipping unparseable calendar event")
				continue
			}
			events = append(events, ev)
		}
	}

	return events, nil
}

func (s *FeedSource) fetchPage(ctx context.Context, propertyID int64, since time.Time, page int) (*feedResponse, error) {
	payload := map[string]any{
		"property_id": propertyID,
		"since":       since.UTC().Format(time.RFC3339),
		"page":        page,
		"pageSize":    s.cfg.PageSize,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var feedResp feedResponse
	if err := json.Unmarshal(body, &feedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal feed response: %w", err)
	}

	if feedResp.Code != 0 {
		return nil, fmt.Errorf("feed returned non-zero application code: %d", feedResp.Code)
	}

	return &feedResp, nil
}
