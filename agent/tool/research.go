package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/Chative-Desktop-Agent/agent/contract"
	metricsx "github.com/tanpawarit/Chative-Desktop-Agent/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	maxResearchResults = 8
	maxResearchSources = 5
	maxErrorBody       = 512
)

type ResearchConfig struct {
	APIKey        string        `envconfig:"API_KEY"`
	BaseURL       string        `envconfig:"BASE_URL" default:"https://api.linkup.so/v1/search"`
	Depth         string        `envconfig:"DEPTH" default:"standard"`
	OutputType    string        `envconfig:"OUTPUT_TYPE" default:"searchResults"`
	RatePerSecond float64       `envconfig:"RATE_PER_SECOND" default:"10"`
	Burst         int           `envconfig:"BURST" default:"1"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

// Research queries the Linkup search API. Only redacted queries reach it
// because the executor restores placeholders for write tools alone.
type Research struct {
	cfg     ResearchConfig
	client  *http.Client
	limiter *rate.Limiter
	metrics *metricsx.Metrics
}

func NewResearch(cfg ResearchConfig, metrics *metricsx.Metrics) *Research {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Depth == "" {
		cfg.Depth = "standard"
	}
	if cfg.OutputType == "" {
		cfg.OutputType = "searchResults"
	}
	return &Research{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		metrics: metrics,
	}
}

func (r *Research) Tools() []contractx.Tool {
	return []contractx.Tool{
		New(&schema.ToolInfo{
			Name: ToolWebResearch,
			Desc: "Search the web for current information about companies, people or recent events. Never include personal data in the query.",
			ParamsOneOf: params(map[string]*schema.ParameterInfo{
				"query":       {Type: schema.String, Desc: "A concise natural-language search query.", Required: true},
				"depth":       {Type: schema.String, Desc: "standard or deep.", Enum: []string{"standard", "deep"}},
				"output_type": {Type: schema.String, Desc: "searchResults or sourcedAnswer.", Enum: []string{"searchResults", "sourcedAnswer"}},
			}),
		}, contractx.CapExternal, r.search),
	}
}

type linkupRequest struct {
	Q          string `json:"q"`
	Depth      string `json:"depth"`
	OutputType string `json:"outputType"`
}

type linkupSource struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Content string `json:"content"`
}

type linkupResponse struct {
	Answer  string         `json:"answer"`
	Sources []linkupSource `json:"sources"`
	Results []linkupSource `json:"results"`
}

func (r *Research) search(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	query, bad := requireString(ToolWebResearch, args, "query")
	if bad != nil {
		return *bad, nil
	}
	if r.cfg.APIKey == "" {
		return failed(ToolWebResearch, "web research is not configured (missing LINKUP API key)"), nil
	}
	depth := stringArg(args, "depth")
	if depth != "standard" && depth != "deep" {
		depth = r.cfg.Depth
	}
	outputType := stringArg(args, "output_type")
	if outputType != "searchResults" && outputType != "sourcedAnswer" {
		outputType = r.cfg.OutputType
	}

	if !r.limiter.Allow() {
		if r.metrics != nil {
			r.metrics.ResearchThrottled.Inc()
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return contractx.ToolResult{}, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(linkupRequest{Q: query, Depth: depth, OutputType: outputType})
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return contractx.ToolResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	log.Ctx(ctx).Info().Str("depth", depth).Msg("research: linkup search")
	resp, err := r.client.Do(req)
	if err != nil {
		return failed(ToolWebResearch, fmt.Sprintf("search request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return failed(ToolWebResearch, fmt.Sprintf("search API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))), nil
	}
	var out linkupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return failed(ToolWebResearch, fmt.Sprintf("decode search response: %v", err)), nil
	}
	return done(ToolWebResearch, formatResearch(out, outputType)), nil
}

func formatResearch(out linkupResponse, outputType string) string {
	if outputType == "sourcedAnswer" {
		parts := []string{strings.TrimSpace(out.Answer)}
		if len(out.Sources) > 0 {
			parts = append(parts, "\nSources:")
			for i, s := range out.Sources {
				if i == maxResearchSources {
					break
				}
				parts = append(parts, fmt.Sprintf("  - %s (%s)", s.Title, s.URL))
			}
		}
		return strings.Join(parts, "\n")
	}

	if len(out.Results) == 0 {
		return "No results found."
	}
	parts := make([]string, 0, maxResearchResults)
	for i, s := range out.Results {
		if i == maxResearchResults {
			break
		}
		title := s.Title
		if title == "" {
			title = s.Name
		}
		snippet := s.Snippet
		if snippet == "" {
			snippet = s.Content
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\n    %s\n    %s", i+1, title, truncateRunes(snippet, 400), s.URL))
	}
	return strings.Join(parts, "\n\n")
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
