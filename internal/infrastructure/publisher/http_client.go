package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"locker_siting/internal/domain/model"
)

// HTTPPublisher posts a summary of every finished run to a webhook.
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
}

func NewHTTPPublisher(endpoint string) *HTTPPublisher {
	return &HTTPPublisher{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type RunNotification struct {
	RunID          string          `json:"run_id"`
	CreatedAt      time.Time       `json:"created_at"`
	GeneratedCount int             `json:"generated_count"`
	RetainedCount  int             `json:"retained_count"`
	Scenarios      []ScenarioSites `json:"scenarios"`
}

type ScenarioSites struct {
	Key   string     `json:"key"`
	Sites []SiteInfo `json:"sites"`
}

type SiteInfo struct {
	Rank  int     `json:"rank"`
	Score int     `json:"score"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

func NewRunNotification(run *model.RunResult) RunNotification {
	n := RunNotification{
		RunID:          run.ID,
		CreatedAt:      run.CreatedAt,
		GeneratedCount: run.GeneratedCount,
		RetainedCount:  len(run.Candidates),
	}
	for _, sel := range run.Selections {
		ss := ScenarioSites{Key: sel.Scenario.Key(), Sites: make([]SiteInfo, 0, len(sel.Sites))}
		for _, site := range sel.Sites {
			ss.Sites = append(ss.Sites, SiteInfo{
				Rank:  site.Rank,
				Score: site.Score,
				Lon:   site.Candidate.Location[0],
				Lat:   site.Candidate.Location[1],
			})
		}
		n.Scenarios = append(n.Scenarios, ss)
	}
	return n
}

func (c *HTTPPublisher) Publish(ctx context.Context, run *model.RunResult) error {
	body, err := json.Marshal(NewRunNotification(run))
	if err != nil {
		return fmt.Errorf("failed to marshal run notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}
