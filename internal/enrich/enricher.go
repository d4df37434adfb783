package enrich

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/manuid/internal/config"
	"github.com/sells-group/manuid/internal/model"
)

const systemPrompt = `You are a procurement data extraction assistant. Given raw text scraped from a supplier listing, extract vendor attributes and respond with ONLY a JSON object, no prose, no code fences. Schema:
{
  "certifications": ["string"],
  "regions_served": ["string"],
  "pharmacopeia_supported": ["string"],
  "lead_time_days_range": {"min": int, "max": int} or null,
  "moq_range": {"min": int, "max": int, "unit": "string"} or null
}
Omit nothing; use empty arrays and null when the text does not state a value. Never invent values.`

// Extraction is the structured attribute set pulled from page text.
type Extraction struct {
	Certifications        []string             `json:"certifications"`
	RegionsServed         []string             `json:"regions_served"`
	PharmacopeiaSupported []string             `json:"pharmacopeia_supported"`
	LeadTimeDaysRange     *model.IntRange      `json:"lead_time_days_range"`
	MOQRange              *model.QuantityRange `json:"moq_range"`
}

// Enricher asks the model to extract vendor attributes from scraped text.
type Enricher struct {
	client Client
	cfg    config.EnrichmentConfig
}

// New builds an Enricher. Returns nil when enrichment is disabled or no
// API key is configured; callers treat a nil Enricher as a no-op.
func New(cfg config.EnrichmentConfig) *Enricher {
	if !cfg.Enabled || cfg.AnthropicKey == "" {
		return nil
	}
	return &Enricher{client: NewClient(cfg.AnthropicKey), cfg: cfg}
}

// NewWithClient builds an Enricher around an existing client. Used by tests.
func NewWithClient(client Client, cfg config.EnrichmentConfig) *Enricher {
	return &Enricher{client: client, cfg: cfg}
}

// Extract runs one extraction call over the given page text.
func (e *Enricher) Extract(ctx context.Context, text string) (*Extraction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Extraction{}, nil
	}
	if e.cfg.MaxInputLen > 0 && len(text) > e.cfg.MaxInputLen {
		text = text[:e.cfg.MaxInputLen]
	}

	resp, err := e.client.CreateMessage(ctx, MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: 1024,
		System:    systemPrompt,
		Messages: []Message{
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: extract")
	}

	ext, err := parseExtraction(resp.Text)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("enrichment extraction",
		zap.String("model", resp.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Int("certifications", len(ext.Certifications)),
		zap.Int("regions", len(ext.RegionsServed)),
	)
	return ext, nil
}

// Apply merges an extraction into a company. List fields are unioned
// case-insensitively; range fields are only set when currently empty.
// Reports whether anything changed.
func Apply(company *model.Company, ext *Extraction) bool {
	if ext == nil {
		return false
	}
	changed := false

	if merged, ok := unionLists(company.Certifications, ext.Certifications); ok {
		company.Certifications = merged
		changed = true
	}
	if merged, ok := unionLists(company.RegionsServed, ext.RegionsServed); ok {
		company.RegionsServed = merged
		changed = true
	}
	if merged, ok := unionLists(company.Compliance.PharmacopeiaSupported, ext.PharmacopeiaSupported); ok {
		company.Compliance.PharmacopeiaSupported = merged
		changed = true
	}

	if company.LeadTimeDaysRange == nil && ext.LeadTimeDaysRange != nil {
		r := *ext.LeadTimeDaysRange
		company.LeadTimeDaysRange = &r
		changed = true
	}
	if company.MOQRange == nil && ext.MOQRange != nil {
		r := *ext.MOQRange
		company.MOQRange = &r
		changed = true
	}

	return changed
}

// unionLists appends items from add that existing does not already contain,
// comparing case-insensitively. Reports whether anything was appended.
func unionLists(existing, add []string) ([]string, bool) {
	if len(add) == 0 {
		return existing, false
	}
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[strings.ToLower(strings.TrimSpace(v))] = true
	}
	out := existing
	appended := false
	for _, v := range add {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
		appended = true
	}
	return out, appended
}

// parseExtraction tolerates code fences and surrounding prose by slicing
// the outermost JSON object before unmarshaling.
func parseExtraction(text string) (*Extraction, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, eris.New("enrich: response contains no JSON object")
	}

	var ext Extraction
	if err := json.Unmarshal([]byte(text[start:end+1]), &ext); err != nil {
		return nil, eris.Wrap(err, "enrich: parse extraction JSON")
	}
	return &ext, nil
}
