// Package holidays fetches the closure calendar from an Airtable table.
package holidays

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/deskbot/internal/cache"
	"github.com/nextlevelbuilder/deskbot/internal/config"
)

// CacheTTL is how long a fetched holiday list is served before refetching.
const CacheTTL = 24 * time.Hour

const defaultAPIBase = "https://api.airtable.com/v0"

// Airtable requests are capped at 5 per second per base.
const requestsPerSecond = 5

// Airtable lists holiday dates from a table where each record carries a date
// field and an optional "atendemos" checkbox. Checked records are days the
// business opens anyway and are skipped.
type Airtable struct {
	apiKey  string
	baseID  string
	table   string
	view    string
	apiBase string
	client  *http.Client
	limiter *rate.Limiter
	loc     *time.Location
}

// NewAirtable builds a client from the schedule config.
func NewAirtable(cfg config.AirtableConfig, loc *time.Location) *Airtable {
	base := cfg.APIBase
	if base == "" {
		base = defaultAPIBase
	}
	if loc == nil {
		loc = time.Local
	}
	return &Airtable{
		apiKey:  cfg.APIKey,
		baseID:  cfg.BaseID,
		table:   cfg.Table,
		view:    cfg.View,
		apiBase: strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		loc:     loc,
	}
}

// Configured reports whether credentials are present.
func (a *Airtable) Configured() bool {
	return a.apiKey != "" && a.baseID != ""
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset"`
}

type record struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// HTTPError is returned for non-2xx Airtable responses.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("airtable: HTTP %d: %s", e.Status, e.Body)
}

// Fetch returns every holiday date (YYYY-MM-DD) following pagination.
// Without credentials it returns an empty list and no error.
func (a *Airtable) Fetch(ctx context.Context) ([]string, error) {
	if !a.Configured() {
		slog.Warn("airtable not configured, skipping holidays")
		return []string{}, nil
	}

	dates := []string{}
	offset := ""
	for {
		page, err := a.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Records {
			if d, ok := a.holidayDate(r); ok {
				dates = append(dates, d)
			}
		}
		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	slog.Info("holidays loaded from airtable", "count", len(dates))
	return dates, nil
}

func (a *Airtable) fetchPage(ctx context.Context, offset string) (*listResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	if a.view != "" {
		q.Set("view", a.view)
	}
	if offset != "" {
		q.Set("offset", offset)
	}
	endpoint := fmt.Sprintf("%s/%s/%s?%s", a.apiBase, a.baseID, url.PathEscape(a.table), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("airtable: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("airtable: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var page listResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("airtable: decode response: %w", err)
	}
	return &page, nil
}

// holidayDate extracts the date of a closure record. The field name is
// accepted in either capitalization since tables are hand-maintained.
func (a *Airtable) holidayDate(r record) (string, bool) {
	if checked, _ := r.Fields["atendemos"].(bool); checked {
		return "", false
	}
	raw, _ := r.Fields["Fecha"].(string)
	if raw == "" {
		raw, _ = r.Fields["fecha"].(string)
	}
	if raw == "" {
		return "", false
	}
	return normalizeDate(raw, a.loc)
}

func normalizeDate(raw string, loc *time.Location) (string, bool) {
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.Format(time.DateOnly), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc).Format(time.DateOnly), true
	}
	slog.Warn("airtable: unparseable holiday date", "value", raw)
	return "", false
}

// NewCache wraps a source in the 24-hour holiday cache.
func NewCache(src *Airtable) *cache.TTL[[]string] {
	return cache.NewTTL("holidays", CacheTTL, src.Fetch)
}
