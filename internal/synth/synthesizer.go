package synth

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"scholarqa/internal/models"
	"scholarqa/internal/providers"
	"scholarqa/internal/util"
)

// InsufficientEvidenceText is the fixed answer body when retrieval produced
// nothing usable. Callers should branch on Insufficient, not on this string.
const InsufficientEvidenceText = "The indexed corpus does not contain enough evidence to answer this question."

type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// Synthesizer turns retrieved evidence into a cited answer. Every citation
// on the way out is a member of the evidence set that went in; the model
// cannot introduce sources of its own.
type Synthesizer struct {
	provider providers.LLMProvider
	cfg      Config
}

func New(p providers.LLMProvider, cfg Config) *Synthesizer {
	return &Synthesizer{provider: p, cfg: cfg.withDefaults()}
}

// Synthesize produces an Answer from the question and its evidence. With no
// evidence it short-circuits to an insufficient-evidence answer without
// calling the provider at all.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, evidence []models.EvidenceItem) (models.Answer, error) {
	if len(evidence) == 0 {
		return models.Answer{
			Text:         InsufficientEvidenceText,
			Citations:    []models.EvidenceItem{},
			Insufficient: true,
		}, nil
	}

	text, err := s.generate(ctx, BuildPrompt(question), BuildContext(evidence))
	if err != nil {
		return models.Answer{}, err
	}

	cited := ExtractCitationRefs(text)
	citations := make([]models.EvidenceItem, 0, len(cited))
	for _, n := range cited {
		if n >= 1 && n <= len(evidence) {
			citations = append(citations, evidence[n-1])
		}
	}
	return models.Answer{Text: text, Citations: citations}, nil
}

// BuildPrompt renders the instruction block plus the question. Evidence
// travels separately as provider context so each provider can place it in
// its own call shape.
func BuildPrompt(question string) string {
	var sb strings.Builder
	sb.WriteString("You are a research assistant answering questions about academic papers.\n")
	sb.WriteString("Answer using ONLY the numbered excerpts provided as evidence. Cite every claim with its marker, e.g. [C1].\n")
	sb.WriteString("If the excerpts do not contain the answer, say so explicitly.\n\n")
	sb.WriteString("Question: ")
	sb.WriteString(question)
	return sb.String()
}

// BuildContext tags each excerpt with its [C#] marker and source paper.
func BuildContext(evidence []models.EvidenceItem) []string {
	out := make([]string, 0, len(evidence))
	for i, e := range evidence {
		out = append(out, fmt.Sprintf("[C%d] (paper %s) %s", i+1, e.PaperID, e.SourceExcerpt))
	}
	return out
}

var citationRefRe = regexp.MustCompile(`\[C(\d+)\]`)

// ExtractCitationRefs returns the distinct [C#] numbers referenced in the
// generated text, in first-reference order.
func ExtractCitationRefs(text string) []int {
	seen := map[int]struct{}{}
	var refs []int
	for _, m := range citationRefRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		refs = append(refs, n)
	}
	return refs
}

func (s *Synthesizer) generate(ctx context.Context, prompt string, evidence []string) (string, error) {
	var lastErr error
	backoff := s.cfg.RetryBackoff
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		resp, _, err := s.provider.Generate(ctx, providers.GenerateRequest{
			Operation: "answer",
			Prompt:    prompt,
			Context:   evidence,
		})
		if err == nil {
			answer := strings.TrimSpace(resp.Text)
			if answer == "" {
				return "", fmt.Errorf("provider returned empty answer: %w", util.ErrGenerationService)
			}
			return answer, nil
		}
		lastErr = err
		if !providers.Retryable(providers.ClassifyError(err)) {
			break
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("generation canceled: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("generation failed after retries: %v: %w", lastErr, util.ErrGenerationService)
}
