// Package enrich looks up upcoming fixtures for a team from a football data provider.
// Lookups are best-effort: every failure means "no enrichment", never an error.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"match-chatter/internal/logging"
)

// Fixture is one upcoming match of the looked-up team.
type Fixture struct {
	Date   time.Time
	League string
	Home   string
	Away   string
	Venue  string
}

type Result struct {
	Team     string
	Fixtures []Fixture
}

// Text renders the result as a block appended to the user turn.
func (r *Result) Text() string {
	if r == nil || len(r.Fixtures) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ближайшие матчи %s:", r.Team)
	for _, f := range r.Fixtures {
		fmt.Fprintf(&b, "\n- %s: %s — %s", f.Date.Format("02.01.2006 15:04"), f.Home, f.Away)
		if f.League != "" {
			fmt.Fprintf(&b, " (%s)", f.League)
		}
		if f.Venue != "" {
			fmt.Fprintf(&b, ", %s", f.Venue)
		}
	}
	return b.String()
}

type Gateway interface {
	Lookup(ctx context.Context, entity string) (*Result, bool)
}

// Nop is the gateway used when enrichment is not configured.
type Nop struct{}

func (Nop) Lookup(context.Context, string) (*Result, bool) { return nil, false }

// Client talks to an api-sports compatible football API.
type Client struct {
	apiKey   string
	baseURL  string
	http     *http.Client
	upcoming int
	logger   *slog.Logger
}

func NewClient(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		upcoming: 3,
		logger:   logging.OrDefault(logger),
	}
}

type teamsResponse struct {
	Response []struct {
		Team struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"team"`
	} `json:"response"`
}

type fixturesResponse struct {
	Response []struct {
		Fixture struct {
			Date  time.Time `json:"date"`
			Venue struct {
				Name string `json:"name"`
			} `json:"venue"`
		} `json:"fixture"`
		League struct {
			Name string `json:"name"`
		} `json:"league"`
		Teams struct {
			Home struct {
				Name string `json:"name"`
			} `json:"home"`
			Away struct {
				Name string `json:"name"`
			} `json:"away"`
		} `json:"teams"`
	} `json:"response"`
}

// Lookup resolves the team id, then fetches its next fixtures.
func (c *Client) Lookup(ctx context.Context, entity string) (*Result, bool) {
	entity = strings.TrimSpace(entity)
	if c.apiKey == "" || c.baseURL == "" || entity == "" {
		return nil, false
	}

	var teams teamsResponse
	if err := c.get(ctx, "/teams", url.Values{"search": {entity}}, &teams); err != nil {
		c.logger.Warn("enrichment team lookup failed", "entity", entity, "error", err)
		return nil, false
	}
	if len(teams.Response) == 0 {
		c.logger.Debug("enrichment: team not found", "entity", entity)
		return nil, false
	}
	team := teams.Response[0].Team

	var fixtures fixturesResponse
	q := url.Values{"team": {strconv.Itoa(team.ID)}, "next": {strconv.Itoa(c.upcoming)}}
	if err := c.get(ctx, "/fixtures", q, &fixtures); err != nil {
		c.logger.Warn("enrichment fixtures lookup failed", "team_id", team.ID, "error", err)
		return nil, false
	}
	if len(fixtures.Response) == 0 {
		return nil, false
	}

	res := &Result{Team: team.Name}
	for _, f := range fixtures.Response {
		res.Fixtures = append(res.Fixtures, Fixture{
			Date:   f.Fixture.Date,
			League: f.League.Name,
			Home:   f.Teams.Home.Name,
			Away:   f.Teams.Away.Name,
			Venue:  f.Fixture.Venue.Name,
		})
	}
	return res, true
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("x-apisports-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
