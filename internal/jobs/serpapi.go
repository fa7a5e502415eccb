package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultSerpAPIBase = "https://serpapi.com/search.json"

// SerpAPIClient fetches postings from the SerpAPI google_jobs engine.
type SerpAPIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

var _ SearchClient = (*SerpAPIClient)(nil)

// NewSerpAPIClient creates a client using the given API key.
func NewSerpAPIClient(apiKey string) (*SerpAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("serpapi: api key must not be empty")
	}
	return &SerpAPIClient{
		apiKey:     apiKey,
		baseURL:    defaultSerpAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// WithBaseURL overrides the endpoint, used by tests to point at a fixture
// server.
func (c *SerpAPIClient) WithBaseURL(base string) *SerpAPIClient {
	c.baseURL = strings.TrimRight(base, "/")
	return c
}

type serpJobsResponse struct {
	JobsResults []serpJob `json:"jobs_results"`
}

type serpJob struct {
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Extensions  struct {
		ScheduleType string `json:"schedule_type"`
		WorkFromHome bool   `json:"work_from_home"`
	} `json:"detected_extensions"`
}

// FetchRecords queries google_jobs for one role/location pair.
func (c *SerpAPIClient) FetchRecords(ctx context.Context, query, location string) ([]JobRecord, error) {
	params := url.Values{}
	params.Set("engine", "google_jobs")
	params.Set("q", query)
	params.Set("location", location)
	params.Set("hl", "en")
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("serpapi: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serpapi: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out serpJobsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("serpapi: decode response: %w", err)
	}

	records := make([]JobRecord, 0, len(out.JobsResults))
	for _, j := range out.JobsResults {
		records = append(records, JobRecord{
			Title:       j.Title,
			Company:     j.CompanyName,
			Location:    j.Location,
			Description: j.Description,
			Type:        j.Extensions.ScheduleType,
			Remote:      j.Extensions.WorkFromHome,
			Source:      "serpapi",
		})
	}
	return records, nil
}
