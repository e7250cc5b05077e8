package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/carenote/medrec/internal/domain/medication"
	"github.com/carenote/medrec/internal/observability/metrics"
	"github.com/carenote/medrec/pkg/responsecache"
)

// systemPrompt is the fixed prompt contract with the extraction service.
// The response shape it demands is what parseOracleResponse validates.
const systemPrompt = `You are a clinical medication extraction service. ` +
	`Given a clinical note, extract every medication order as JSON with this exact shape: ` +
	`{"medications":[{"name":"...","dose":"...","route":"...","frequency":"...","action":"add|continue|stop|update","confidence":0.0,"sourceSnippet":"..."}],` +
	`"stoppedMedications":["..."]}. ` +
	`Confidence is your certainty in [0,1]. sourceSnippet is the verbatim text the order came from. ` +
	`Do not invent medications that are not in the note. Respond with JSON only.`

// LLMConfig holds configuration for the network-backed oracle.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// LLMConfigFromEnv reads oracle settings from the environment.
func LLMConfigFromEnv() LLMConfig {
	cfg := LLMConfig{
		BaseURL: strings.TrimRight(os.Getenv("ORACLE_BASE_URL"), "/"),
		APIKey:  os.Getenv("ORACLE_API_KEY"),
		Model:   os.Getenv("ORACLE_MODEL"),
		Timeout: 30 * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if v := os.Getenv("ORACLE_TIMEOUT_SECONDS"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Timeout = time.Duration(sec) * time.Second
		}
	}
	return cfg
}

// LLMOracle is the primary extractor. It delegates the full extraction
// task, including action classification, to an external natural-language
// service over a chat-completions endpoint. A response cache keyed by a
// hash of the note text sits in front of the network call; the cache is
// injected so tests run with a fresh, deterministic instance.
type LLMOracle struct {
	cfg        LLMConfig
	httpClient *http.Client
	cache      *responsecache.Cache
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewLLMOracle creates the primary oracle. cache may be nil to disable
// response caching; m may be nil to disable cache hit/miss counters.
func NewLLMOracle(cfg LLMConfig, cache *responsecache.Cache, m *metrics.Metrics, logger *zap.Logger) *LLMOracle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMOracle{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		metrics:    m,
		logger:     logger,
		tracer:     otel.Tracer("llm-oracle"),
	}
}

// Name implements Oracle.
func (o *LLMOracle) Name() string { return MethodPrimary }

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// wireCommand mirrors one entry of the oracle's medications array.
type wireCommand struct {
	Name          string  `json:"name"`
	Dose          string  `json:"dose"`
	Route         string  `json:"route"`
	Frequency     string  `json:"frequency"`
	Action        string  `json:"action"`
	Confidence    float64 `json:"confidence"`
	SourceSnippet string  `json:"sourceSnippet"`
}

// Extract implements Oracle. Any transport error, non-2xx status,
// non-JSON body, or response without a medications array is returned as
// an error; the caller falls back to the regex oracle.
func (o *LLMOracle) Extract(ctx context.Context, note string, pctx PatientContext) (*Extraction, error) {
	ctx, span := o.tracer.Start(ctx, "llm_extract",
		trace.WithAttributes(attribute.Int("note_length", len(note))))
	defer span.End()

	cacheKey := responsecache.Key(note)
	if o.cache != nil {
		if raw, ok := o.cache.Get(cacheKey); ok {
			var ext Extraction
			if err := json.Unmarshal(raw, &ext); err == nil {
				span.SetAttributes(attribute.Bool("cache_hit", true))
				if o.metrics != nil {
					o.metrics.CacheHits.Inc()
				}
				return &ext, nil
			}
		}
		if o.metrics != nil {
			o.metrics.CacheMisses.Inc()
		}
	}

	req := chatRequest{
		Model: o.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(note, pctx)},
		},
		Temperature: 0.1,
	}
	req.ResponseFormat.Type = "json_object"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("oracle request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("oracle read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("oracle http %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var chat chatResponse
	if err := json.Unmarshal(raw, &chat); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(chat.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	ext, err := parseOracleResponse(chat.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if o.cache != nil {
		if cached, err := json.Marshal(ext); err == nil {
			o.cache.Set(cacheKey, cached)
		}
	}

	o.logger.Debug("llm extraction complete",
		zap.Int("commands", len(ext.Commands)),
		zap.Int("stops", len(ext.StoppedNames)))
	return ext, nil
}

// parseOracleResponse validates the wire contract: a JSON object whose
// medications key holds an array. Missing key or wrong shape is an
// oracle failure, not a subsystem failure.
func parseOracleResponse(content string) (*Extraction, error) {
	var payload struct {
		Medications json.RawMessage `json:"medications"`
		Stopped     []string        `json:"stoppedMedications"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Medications == nil {
		return nil, fmt.Errorf("%w: missing medications array", ErrMalformedResponse)
	}

	var wire []wireCommand
	if err := json.Unmarshal(payload.Medications, &wire); err != nil {
		return nil, fmt.Errorf("%w: medications is not an array", ErrMalformedResponse)
	}

	ext := &Extraction{StoppedNames: payload.Stopped}
	for _, w := range wire {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		dose := strings.TrimSpace(w.Dose)
		if dose == "" {
			dose = medication.DoseAsPrescribed
		}
		ext.Commands = append(ext.Commands, &medication.Command{
			Name:          name,
			Dose:          dose,
			Route:         strings.TrimSpace(w.Route),
			Frequency:     strings.TrimSpace(w.Frequency),
			Action:        medication.ParseAction(strings.ToLower(strings.TrimSpace(w.Action))),
			Confidence:    clamp01(w.Confidence),
			SourceSnippet: w.SourceSnippet,
		})
	}
	return ext, nil
}

// buildUserPrompt appends the compact patient-context block to the note.
func buildUserPrompt(note string, pctx PatientContext) string {
	var b strings.Builder
	b.WriteString("Patient context:\n")
	if pctx.Age > 0 {
		fmt.Fprintf(&b, "- Age: %d %s\n", pctx.Age, pctx.AgeUnit)
	}
	if pctx.CareUnit != "" {
		fmt.Fprintf(&b, "- Care unit: %s\n", pctx.CareUnit)
	}
	if pctx.Diagnosis != "" {
		fmt.Fprintf(&b, "- Diagnosis: %s\n", pctx.Diagnosis)
	}
	if len(pctx.CurrentMedications) > 0 {
		b.WriteString("- Current medications: ")
		for i, rec := range pctx.CurrentMedications {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(rec.Name)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nClinical note:\n")
	b.WriteString(note)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
