// Package config defines the static configuration the pipeline is
// constructed with: category vocabulary, classification rules and the
// operational bounds of the classifier adapter. Configuration is immutable
// for the lifetime of a batch; tests substitute fixtures instead of touching
// global state.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
)

// KeywordRule classifies a transaction before any model call when one of its
// keywords appears in the (upper-cased) description. Credit and debit matches
// may map to different categories; an empty side means the rule does not
// apply to that direction.
type KeywordRule struct {
	Keywords       []string `json:"keywords" validate:"min=1,dive,required"`
	CreditCategory string   `json:"credit_category"`
	DebitCategory  string   `json:"debit_category"`
	Reason         string   `json:"reason"`
}

// Pipeline is the full configuration surface consumed by the pipeline core.
type Pipeline struct {
	// Categories is the closed vocabulary the classifier may assign from.
	Categories []string `json:"categories" validate:"min=1,dive,required"`
	// FallbackCategory is applied when classification cannot validly label a
	// transaction. It must be part of the vocabulary.
	FallbackCategory string `json:"fallback_category" validate:"required"`
	// RuleText is the free-form classification guidance handed to the
	// reasoning service verbatim.
	RuleText string `json:"rule_text"`
	// KeywordRules run before the reasoning service is consulted.
	KeywordRules []KeywordRule `json:"keyword_rules" validate:"dive"`

	// Model names the reasoning model to call.
	Model string `json:"model" validate:"required"`
	// BatchSize bounds how many transactions go into one classification
	// request.
	BatchSize int `json:"batch_size" validate:"min=1"`
	// MaxAttempts bounds retries per batch on transient failure.
	MaxAttempts int `json:"max_attempts" validate:"min=1"`
	// CallTimeout bounds a single reasoning call.
	CallTimeout Duration `json:"call_timeout"`
	// Workers bounds how many classification batches run concurrently.
	Workers int `json:"workers" validate:"min=1"`
}

// Default returns the stock configuration: the standard vocabulary, the
// transfer/card/insurance keyword rules and conservative classifier bounds.
func Default() Pipeline {
	return Pipeline{
		Categories: []string{
			"Alimentação", "Transporte", "Moradia", "Saúde", "Educação",
			"Entretenimento", "Compras", "Serviços Financeiros", "Outros",
		},
		FallbackCategory: "Outros",
		RuleText: "Classifique cada transação bancária na categoria mais adequada " +
			"considerando a descrição e a direção (crédito ou débito).",
		KeywordRules: []KeywordRule{
			{
				Keywords:       []string{"PIX", "TED", "DOC"},
				CreditCategory: "Outros",
				DebitCategory:  "Outros",
				Reason:         "transferência genérica",
			},
			{
				Keywords:       []string{"REDE", "CARTAO", "CARTÃO"},
				CreditCategory: "Outros",
				Reason:         "recebimento via cartão/maquininha",
			},
			{
				Keywords:      []string{"SEGURO"},
				DebitCategory: "Serviços Financeiros",
				Reason:        "seguro identificado na descrição",
			},
			{
				Keywords:      []string{"CONSORCIO", "CONSÓRCIO"},
				DebitCategory: "Serviços Financeiros",
				Reason:        "consórcio identificado na descrição",
			},
			{
				Keywords:      []string{"OUROCAP", "INVEST", "RENDE FACIL", "RENDE FÁCIL"},
				DebitCategory: "Serviços Financeiros",
				Reason:        "aplicação financeira identificada",
			},
		},
		Model:       "gemini-2.5-flash",
		BatchSize:   25,
		MaxAttempts: 3,
		CallTimeout: Duration(45 * time.Second),
		Workers:     4,
	}
}

var validate = validator.New()

// Validate checks structural constraints plus the cross-field invariants the
// tags cannot express.
func (p Pipeline) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("config.Validate: %w", err)
	}

	vocab := make(map[string]bool, len(p.Categories))
	for _, c := range p.Categories {
		vocab[c] = true
	}
	if !vocab[p.FallbackCategory] {
		return fmt.Errorf("config.Validate: fallback category %q not in vocabulary", p.FallbackCategory)
	}
	for i, rule := range p.KeywordRules {
		for _, cat := range []string{rule.CreditCategory, rule.DebitCategory} {
			if cat != "" && !vocab[cat] {
				return fmt.Errorf("config.Validate: keyword rule %d assigns %q outside the vocabulary", i, cat)
			}
		}
		if rule.CreditCategory == "" && rule.DebitCategory == "" {
			return fmt.Errorf("config.Validate: keyword rule %d assigns no category", i)
		}
	}
	if p.CallTimeout <= 0 {
		return fmt.Errorf("config.Validate: call timeout must be positive")
	}
	return nil
}

// LoadFile reads and validates a pipeline configuration from a JSON file.
// Missing operational bounds fall back to the defaults.
func LoadFile(path string) (Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config.LoadFile: %w", err)
	}

	p := Default()
	if err := json.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("config.LoadFile: parsing %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Pipeline{}, err
	}
	return p, nil
}

// Duration is a time.Duration that marshals as a human-readable string
// ("45s", "2m") in JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}
