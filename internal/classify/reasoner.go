package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/jemadeira/extrato/internal/domain"
)

// Request is one classification call: a bounded batch of transactions plus
// the vocabulary and rule text they must be labeled against.
type Request struct {
	Transactions []domain.Transaction
	Categories   []string
	RuleText     string
}

// Response carries the raw model text plus the per-transaction labels parsed
// out of it. Raw is kept for the audit trail.
type Response struct {
	Labels map[string]string // transaction id -> category
	Raw    string
}

// Reasoner is the external reasoning service. The Gemini implementation is
// the production one; tests substitute a scripted fake.
type Reasoner interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// GeminiReasoner classifies batches through the Gemini API.
type GeminiReasoner struct {
	model string
}

func NewGeminiReasoner(model string) *GeminiReasoner {
	return &GeminiReasoner{model: model}
}

func (g *GeminiReasoner) Classify(ctx context.Context, req Request) (Response, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return Response{}, fmt.Errorf("GeminiReasoner.Classify: create client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: BuildPrompt(req)}},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Response{}, &domain.ClassificationTransientError{Err: fmt.Errorf("generate content: %w", err)}
	}

	raw := resp.Text()
	if raw == "" {
		return Response{}, &domain.ClassificationTransientError{Err: fmt.Errorf("empty response from model")}
	}

	labels, err := ParseLabels(raw)
	if err != nil {
		// Unparseable output counts as transient: the same prompt usually
		// succeeds on a second attempt.
		return Response{}, &domain.ClassificationTransientError{Err: err}
	}
	return Response{Labels: labels, Raw: raw}, nil
}

// BuildPrompt renders the categorization request: instructions, the closed
// vocabulary, the caller's rule text and the batch as a JSON list.
func BuildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("Você é um analista financeiro especializado em classificar transações bancárias.\n\n")
	b.WriteString("Tarefa:\n")
	b.WriteString("- Classifique CADA transação da lista abaixo em exatamente uma categoria.\n")
	b.WriteString("- Responda SOMENTE com JSON válido (sem comentários, sem texto extra).\n")
	b.WriteString("- A resposta deve ser um array JSON de objetos {\"id\": string, \"category\": string}.\n")
	b.WriteString("- Um objeto por transação de entrada, usando o mesmo \"id\".\n")
	b.WriteString("- Não use cercas de código Markdown; a resposta deve começar com \"[\" e terminar com \"]\".\n\n")

	b.WriteString("Use SOMENTE as categorias a seguir:\n")
	for _, c := range req.Categories {
		b.WriteString("  - " + c + "\n")
	}
	b.WriteString("\n")

	if req.RuleText != "" {
		b.WriteString("REGRAS DE CLASSIFICAÇÃO:\n")
		b.WriteString(req.RuleText)
		b.WriteString("\n\n")
	}

	b.WriteString("Transações:\n")
	type promptTxn struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Direction   string `json:"direction"`
		Amount      string `json:"amount"`
	}
	items := make([]promptTxn, 0, len(req.Transactions))
	for _, tx := range req.Transactions {
		items = append(items, promptTxn{
			ID:          tx.ID,
			Description: tx.Description,
			Direction:   string(tx.Direction()),
			Amount:      tx.Amount.StringFixed(2),
		})
	}
	encoded, _ := json.MarshalIndent(items, "", "  ")
	b.Write(encoded)
	b.WriteString("\n")

	return b.String()
}

// ParseLabels extracts the id->category map from raw model output, stripping
// Markdown fences and surrounding junk when the model ignores instructions.
func ParseLabels(raw string) (map[string]string, error) {
	clean := cleanModelJSON(raw)

	var items []struct {
		ID       string `json:"id"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(clean), &items); err != nil {
		return nil, fmt.Errorf("ParseLabels: unmarshal: %w", err)
	}

	labels := make(map[string]string, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		labels[it.ID] = strings.TrimSpace(it.Category)
	}
	return labels, nil
}

// cleanModelJSON strips ```json fences and keeps only the outermost JSON
// array when extra prose surrounds it.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
