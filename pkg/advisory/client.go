package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/richard-senior/podds/pkg/transport"
)

var _ Advisor = (*HTTPAdvisor)(nil)

// HTTPAdvisor posts a structured prompt to the advisory endpoint
type HTTPAdvisor struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

type promptRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
}

// NewHTTPAdvisor creates a client for cfg.Endpoint
func NewHTTPAdvisor(cfg Config, client *http.Client) *HTTPAdvisor {
	if client == nil {
		client = transport.NewHTTPClient(cfg.Timeout)
	}
	return &HTTPAdvisor{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		client:   client,
	}
}

func (h *HTTPAdvisor) AnalyzeTeam(ctx context.Context, profile TeamProfile) (*TeamAnalysis, error) {
	var out TeamAnalysis
	if err := h.ask(ctx, teamPrompt(profile), &out); err != nil {
		return nil, fmt.Errorf("team analysis for %s: %w", profile.Name, err)
	}
	out.sanitize()
	if !out.usable() {
		return nil, fmt.Errorf("team analysis for %s: %w: no style, form or strengths", profile.Name, ErrMalformedReply)
	}
	out.Source = SourceService
	return &out, nil
}

func (h *HTTPAdvisor) AnalyzeMatchup(ctx context.Context, profile MatchupProfile) (*MatchupAnalysis, error) {
	var out MatchupAnalysis
	if err := h.ask(ctx, matchupPrompt(profile), &out); err != nil {
		return nil, fmt.Errorf("matchup analysis for %s v %s: %w", profile.Home.Name, profile.Away.Name, err)
	}
	if !out.usable() {
		return nil, fmt.Errorf("matchup analysis for %s v %s: %w: no label, scenarios or factors", profile.Home.Name, profile.Away.Name, ErrMalformedReply)
	}
	out.sanitize()
	out.Source = SourceService
	return &out, nil
}

func (h *HTTPAdvisor) ask(ctx context.Context, prompt string, out any) error {
	headers := map[string]string{}
	if h.apiKey != "" {
		headers["Authorization"] = "Bearer " + h.apiKey
	}
	resp, err := transport.PostJSON(ctx, h.client, h.endpoint, headers, promptRequest{
		Model:  h.model,
		Prompt: prompt,
		Format: "json",
	})
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrThrottled
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("advisory service returned status %d", resp.StatusCode)
	}

	raw, err := ExtractJSON(resp.Body, resp.ContentType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

func teamPrompt(p TeamProfile) string {
	var b strings.Builder
	b.WriteString("You are a football tactical analyst. Analyse the team described by the JSON profile below.\n")
	b.WriteString("Reply with a single JSON object with the fields: style (string), strengths (at most 3 strings), ")
	b.WriteString("weaknesses (at most 3 strings), form_label (excellent|good|average|poor|critical), ")
	b.WriteString("predictability (0-100), confidence (0-100).\n\n")
	writeJSON(&b, p)
	return b.String()
}

func matchupPrompt(p MatchupProfile) string {
	var b strings.Builder
	b.WriteString("You are a football tactical analyst. Analyse the fixture described by the JSON profile below.\n")
	b.WriteString("Reply with a single JSON object with the fields: advantage_label (home|away|balanced), ")
	b.WriteString("confidence (0-100), scenarios (at most 3 objects with description and probability, probabilities summing to at most 100), ")
	b.WriteString("key_factors (strings), upset_potential (0-100).\n\n")
	writeJSON(&b, p)
	return b.String()
}

func writeJSON(b *strings.Builder, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(b, "%+v", v)
		return
	}
	b.Write(data)
}
