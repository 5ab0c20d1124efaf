package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"thermowatch/internal/model"
)

// Client zapouzdřuje HTTP volání na sensor-api.
// Zbytek aplikace neřeší URL adresy, JSON decoding ani status kódy.
type Client struct {
	BaseURL    string
	httpClient *http.Client
}

// New vytvoří klienta. Timeout je nutný, výchozí http.Client žádný nemá.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// StatusError nese HTTP status a text chyby z těla odpovědi.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API vrátilo chybný status: %d", e.Status)
	}
	return fmt.Sprintf("API vrátilo chybný status: %d (%s)", e.Status, e.Message)
}

// ListReadings: GET /api/readings. asOf = 0 znamená první stránku bez kotvy.
func (c *Client) ListReadings(ctx context.Context, page, pageSize int, asOf int64) (model.ReadingPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(pageSize))
	if asOf > 0 {
		q.Set("as_of", strconv.FormatInt(asOf, 10))
	}

	var out model.ReadingPage
	err := c.get(ctx, "/api/readings?"+q.Encode(), &out)
	return out, err
}

// ListThresholds: GET /api/thresholds, od nejnovějšího.
func (c *Client) ListThresholds(ctx context.Context) ([]model.Threshold, error) {
	var out []model.Threshold
	err := c.get(ctx, "/api/thresholds", &out)
	return out, err
}

// CurrentThreshold vrací aktuální limit, nebo nil když ještě žádný není.
func (c *Client) CurrentThreshold(ctx context.Context) (*model.Threshold, error) {
	var out *model.Threshold
	err := c.get(ctx, "/api/thresholds/latest", &out)
	return out, err
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chyba sítě při volání API: %w", err)
	}
	// Body musíme vždy zavřít, jinak tečou file descriptory.
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return &StatusError{Status: resp.StatusCode, Message: body.Error}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("chyba při parsování JSONu: %w", err)
	}
	return nil
}
