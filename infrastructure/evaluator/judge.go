package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/rag-arena/internal/domain"
	"github.com/ahrav/rag-arena/internal/ports"
)

// Default judging parameters. Temperature stays at zero so repeated
// verdicts over the same comparison are as stable as the model allows.
const (
	DefaultJudgeMaxTokens       = 1024
	DefaultJudgeTemperature     = 0.0
	DefaultJudgeMaxChunkChars   = 800
	DefaultJudgeMaxPromptTokens = 6000
)

// defaultPromptTemplate asks for a strict-JSON verdict over the
// per-provider result sets.
const defaultPromptTemplate = `You are evaluating retrieval quality for a RAG system.

Query: {{.Query}}
{{range .Providers}}
## Provider: {{.Name}}
{{if .Failed}}This provider failed: {{.Error}}{{else}}{{range .Chunks}}- (score {{printf "%.3f" .Score}}) {{.Text}}
{{end}}{{end}}{{end}}
Judge which provider retrieved the most relevant and complete context for
answering the query. Respond with only a JSON object:
{"winner": "<provider name or tie>", "scores": {"<provider>": <0.0-1.0>}, "reasoning": "<short explanation>", "confidence": <0.0-1.0>}`

var _ ports.Evaluator = (*Judge)(nil)

// JudgeConfig tunes the judging stage. The zero value selects sensible
// defaults.
type JudgeConfig struct {
	// PromptTemplate overrides the built-in verdict prompt. It is a Go
	// text template receiving Query and Providers.
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template"`

	// Temperature controls verdict randomness.
	Temperature float64 `yaml:"temperature" json:"temperature" validate:"min=0,max=2"`

	// MaxTokens bounds the verdict length.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens" validate:"min=0,max=8192"`

	// MaxChunkChars truncates each chunk's text in the prompt so wide
	// comparisons stay inside the model's context window.
	MaxChunkChars int `yaml:"max_chunk_chars" json:"max_chunk_chars" validate:"min=0"`

	// MinConfidence rejects verdicts the model itself is unsure about.
	// Zero disables the check.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence" validate:"min=0,max=1"`

	// MaxPromptTokens rejects prompts whose estimated token count would
	// blow the model's context window, before any API spend.
	MaxPromptTokens int `yaml:"max_prompt_tokens" json:"max_prompt_tokens" validate:"min=0"`
}

// Judge produces a structured verdict over a finished comparison using
// an LLM. Judge is stateless across calls and safe for concurrent use.
type Judge struct {
	llm      ports.LLMClient
	config   JudgeConfig
	validate *validator.Validate
	tmpl     *template.Template
}

// judgeVerdict is the wire shape the model is asked to produce.
type judgeVerdict struct {
	Winner     string             `json:"winner" validate:"required"`
	Scores     map[string]float64 `json:"scores" validate:"required,min=1,dive,min=0,max=1"`
	Reasoning  string             `json:"reasoning" validate:"required"`
	Confidence float64            `json:"confidence" validate:"min=0,max=1"`
}

// promptProvider is one provider's section of the verdict prompt.
type promptProvider struct {
	Name   string
	Failed bool
	Error  string
	Chunks []domain.RagResult
}

// NewJudge creates a judging stage backed by the given LLM client.
func NewJudge(llm ports.LLMClient, config JudgeConfig) (*Judge, error) {
	if llm == nil {
		return nil, fmt.Errorf("judge requires an LLM client")
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultJudgeMaxTokens
	}
	if config.MaxChunkChars == 0 {
		config.MaxChunkChars = DefaultJudgeMaxChunkChars
	}
	if config.MaxPromptTokens == 0 {
		config.MaxPromptTokens = DefaultJudgeMaxPromptTokens
	}

	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid judge config: %w", err)
	}

	text := config.PromptTemplate
	if text == "" {
		text = defaultPromptTemplate
	}
	tmpl, err := template.New("verdict").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse judge prompt template: %w", err)
	}

	return &Judge{llm: llm, config: config, validate: validate, tmpl: tmpl}, nil
}

// Evaluate asks the model to compare the per-provider result sets and
// returns its verdict. A comparison where every provider failed cannot
// be judged.
func (j *Judge) Evaluate(ctx context.Context, comparison *domain.ComparisonResult) (*domain.Evaluation, error) {
	if len(comparison.ToolResults) == 0 {
		return nil, domain.NewEvaluationError(j.llm.GetModel(),
			fmt.Errorf("no provider produced results for query %q", comparison.Query))
	}

	prompt, err := j.buildPrompt(comparison)
	if err != nil {
		return nil, domain.NewEvaluationError(j.llm.GetModel(), err)
	}
	if estimated, err := j.llm.EstimateTokens(prompt); err == nil && estimated > j.config.MaxPromptTokens {
		return nil, domain.NewEvaluationError(j.llm.GetModel(),
			fmt.Errorf("verdict prompt is an estimated %d tokens, budget is %d; lower max_chunk_chars or compare fewer providers",
				estimated, j.config.MaxPromptTokens))
	}

	response, err := j.llm.Complete(ctx, prompt, map[string]any{
		"temperature": j.config.Temperature,
		"max_tokens":  j.config.MaxTokens,
	})
	if err != nil {
		return nil, domain.NewEvaluationError(j.llm.GetModel(), err)
	}

	verdict, err := j.parseVerdict(response)
	if err != nil {
		return nil, domain.NewEvaluationError(j.llm.GetModel(), err)
	}
	if err := j.checkVerdict(verdict, comparison); err != nil {
		return nil, domain.NewEvaluationError(j.llm.GetModel(), err)
	}

	return &domain.Evaluation{
		Model:      j.llm.GetModel(),
		Winner:     verdict.Winner,
		Scores:     verdict.Scores,
		Reasoning:  verdict.Reasoning,
		Confidence: verdict.Confidence,
	}, nil
}

// buildPrompt renders the verdict prompt in the comparison's provider
// order.
func (j *Judge) buildPrompt(comparison *domain.ComparisonResult) (string, error) {
	providers := make([]promptProvider, 0, len(comparison.Providers))
	for _, name := range comparison.Providers {
		section := promptProvider{Name: name}
		if msg, failed := comparison.Errors[name]; failed {
			section.Failed = true
			section.Error = msg
		} else {
			for _, chunk := range comparison.ToolResults[name] {
				if len(chunk.Text) > j.config.MaxChunkChars {
					chunk.Text = chunk.Text[:j.config.MaxChunkChars] + "..."
				}
				section.Chunks = append(section.Chunks, chunk)
			}
		}
		providers = append(providers, section)
	}

	var buf strings.Builder
	err := j.tmpl.Execute(&buf, struct {
		Query     string
		Providers []promptProvider
	}{Query: comparison.Query, Providers: providers})
	if err != nil {
		return "", fmt.Errorf("render judge prompt: %w", err)
	}
	return buf.String(), nil
}

// parseVerdict extracts and validates the JSON verdict from the model's
// reply.
func (j *Judge) parseVerdict(response string) (*judgeVerdict, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, fmt.Errorf("%w: no JSON object in judge reply (%d chars)",
			ports.ErrInvalidResponse, len(response))
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(jsonStr), &verdict); err != nil {
		return nil, fmt.Errorf("%w: parse judge verdict: %v", ports.ErrInvalidResponse, err)
	}
	if err := j.validate.Struct(verdict); err != nil {
		return nil, fmt.Errorf("%w: verdict failed validation: %v", ports.ErrInvalidResponse, err)
	}
	return &verdict, nil
}

// checkVerdict enforces the semantic constraints the validator cannot
// express: the winner must name a compared provider or "tie", and the
// confidence must clear the configured floor.
func (j *Judge) checkVerdict(verdict *judgeVerdict, comparison *domain.ComparisonResult) error {
	if verdict.Winner != "tie" {
		known := false
		for _, name := range comparison.Providers {
			if name == verdict.Winner {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: verdict names unknown provider %q",
				ports.ErrInvalidResponse, verdict.Winner)
		}
	}
	if j.config.MinConfidence > 0 && verdict.Confidence < j.config.MinConfidence {
		return fmt.Errorf("verdict confidence %.2f below floor %.2f",
			verdict.Confidence, j.config.MinConfidence)
	}
	return nil
}

// extractJSON pulls the JSON object out of a reply that may wrap it in
// markdown fences or surrounding prose.
func extractJSON(response string) string {
	response = strings.TrimSpace(response)

	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			return strings.TrimSpace(response[start : start+end])
		}
	}

	start := strings.Index(response, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return response[start : i+1]
				}
			}
		}
	}
	return ""
}
