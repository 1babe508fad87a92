// Package aix extracts listing fragments from raw markup with an
// OpenAI-compatible chat completions endpoint. It is the last resort of
// the extraction chain: expensive, slow, but able to read pages no
// selector or embedded-state strategy understands.
package aix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/vigiauto/vigiauto/internal/listing"
)

// Extractor turns raw page markup into loosely-typed listing fragments.
type Extractor interface {
	Extract(ctx context.Context, html string, q listing.Query) ([]listing.Fragment, error)
}

// Config for the chat completions client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// MaxHTMLBytes bounds how much trimmed markup goes into the prompt.
	MaxHTMLBytes int
}

// Client calls an OpenAI-compatible /v1/chat/completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// New builds a Client. APIKey and BaseURL must be set by the caller;
// Model defaults to gpt-4o-mini.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxHTMLBytes == 0 {
		cfg.MaxHTMLBytes = 60_000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = `You extract used-car listings from French marketplace HTML.
Return ONLY a JSON object of the form {"listings": [...]}. Each element has:
  "title"   string, the ad title (required)
  "url"     string, the ad link, absolute or relative (required)
  "price"   string, price text as written, or ""
  "year"    string, first registration year, or ""
  "mileage" string, odometer text as written (e.g. "124 000 km"), or ""
  "city"    string or ""
  "image"   string or ""
Skip navigation, ads for other vehicles than the requested one, and
sponsored placements. If nothing matches, return {"listings": []}.`

// Extract sends the trimmed markup plus the query to the model and
// validates the returned fragments.
func (c *Client) Extract(ctx context.Context, html string, q listing.Query) ([]listing.Fragment, error) {
	trimmed := TrimHTML(html, q, c.cfg.MaxHTMLBytes)
	if trimmed == "" {
		return nil, nil
	}

	user := fmt.Sprintf("Vehicle searched: %s %s. Max price: %d EUR.\n\nHTML:\n%s",
		q.Brand, q.Model, q.MaxPrice, trimmed)

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: user},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("aix: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("aix: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aix: call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("aix: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aix: model returned status %d", resp.StatusCode)
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return nil, fmt.Errorf("aix: decode response: %w", err)
	}
	if cr.Error != nil {
		return nil, fmt.Errorf("aix: model error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return nil, fmt.Errorf("aix: empty completion")
	}

	frags, err := parseFragments(cr.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("ai extraction complete", "fragments", len(frags))
	return frags, nil
}

type aiListing struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Price   string `json:"price"`
	Year    string `json:"year"`
	Mileage string `json:"mileage"`
	City    string `json:"city"`
	Image   string `json:"image"`
}

func parseFragments(content string) ([]listing.Fragment, error) {
	content = strings.TrimSpace(content)
	// Some models wrap JSON in a code fence despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var wrapper struct {
		Listings []aiListing `json:"listings"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err != nil {
		// Tolerate a bare array.
		var arr []aiListing
		if err2 := json.Unmarshal([]byte(content), &arr); err2 != nil {
			return nil, fmt.Errorf("aix: malformed completion: %w", err)
		}
		wrapper.Listings = arr
	}

	var out []listing.Fragment
	for _, a := range wrapper.Listings {
		if strings.TrimSpace(a.Title) == "" || strings.TrimSpace(a.URL) == "" {
			continue
		}
		f := listing.Fragment{
			Title:     a.Title,
			PriceText: a.Price,
			YearText:  a.Year,
			URL:       a.URL,
			ImageURL:  a.Image,
			City:      a.City,
			Strategy:  "ai",
		}
		if strings.TrimSpace(a.Mileage) != "" {
			f.Mileages = append(f.Mileages, listing.RawField{Raw: a.Mileage, Source: "ai"})
		}
		out = append(out, f)
	}
	return out, nil
}

var (
	scriptRe   = regexp.MustCompile(`(?is)<(script|style|svg|noscript)\b.*?</\s*(script|style|svg|noscript)\s*>`)
	openTagRe  = regexp.MustCompile(`(?is)<(\w+)([^>]*)>`)
	keepAttrRe = regexp.MustCompile(`(?i)\b(href|src)="[^"]*"`)
)

// TrimHTML strips scripts and all attributes except href/src, then keeps
// a window of the document centered on the first mention of the searched
// brand or model, so the prompt stays within budget on large pages.
func TrimHTML(html string, q listing.Query, max int) string {
	s := scriptRe.ReplaceAllString(html, "")
	s = openTagRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := openTagRe.FindStringSubmatch(tag)
		kept := keepAttrRe.FindString(m[2])
		if kept == "" {
			return "<" + m[1] + ">"
		}
		return "<" + m[1] + " " + kept + ">"
	})
	if len(s) <= max {
		return s
	}
	lower := strings.ToLower(s)
	idx := -1
	for _, needle := range []string{strings.ToLower(q.Model), strings.ToLower(q.Brand)} {
		if needle == "" {
			continue
		}
		if i := strings.Index(lower, needle); i >= 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s[:max]
	}
	start := idx - max/4
	if start < 0 {
		start = 0
	}
	end := start + max
	if end > len(s) {
		end = len(s)
		start = end - max
	}
	return s[start:end]
}
