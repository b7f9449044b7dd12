package classify

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
)

func TestMatchRule(t *testing.T) {
	rules := []config.KeywordRule{
		{
			Keywords:       []string{"PIX", "TED"},
			CreditCategory: "Outros",
			DebitCategory:  "Outros",
			Reason:         "transferência genérica",
		},
		{
			Keywords:       []string{"REDE", "CARTÃO"},
			CreditCategory: "Outros",
			Reason:         "recebimento via cartão",
		},
		{
			Keywords:      []string{"SEGURO"},
			DebitCategory: "Serviços Financeiros",
			Reason:        "seguro",
		},
	}

	tests := []struct {
		name   string
		desc   string
		amount string
		want   string // empty = no match
	}{
		{name: "pix debit", desc: "PIX TRANSF 123", amount: "-10.00", want: "Outros"},
		{name: "pix credit", desc: "PIX RECEBIDO", amount: "10.00", want: "Outros"},
		{name: "keyword is case insensitive", desc: "pix transf", amount: "-10.00", want: "Outros"},
		{name: "credit-only rule on credit", desc: "RECEBIMENTO REDE", amount: "50.00", want: "Outros"},
		{name: "credit-only rule skips debit", desc: "TARIFA REDE", amount: "-50.00", want: ""},
		{name: "debit-only rule on debit", desc: "SEGURO AUTO", amount: "-89.90", want: "Serviços Financeiros"},
		{name: "debit-only rule skips credit", desc: "ESTORNO SEGURO", amount: "89.90", want: ""},
		{name: "accented keyword", desc: "COMPRA CARTÃO LOJA", amount: "25.00", want: "Outros"},
		{name: "no keyword", desc: "SUPERMERCADO", amount: "-30.00", want: ""},
		{name: "first rule wins", desc: "PIX SEGURO", amount: "-5.00", want: "Outros"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matchRule(rules, domain.Transaction{
				Description: tt.desc,
				Amount:      decimal.RequireFromString(tt.amount),
			})
			got := ""
			if m != nil {
				got = m.Category
			}
			if got != tt.want {
				t.Errorf("matchRule(%q) = %q, want %q", tt.desc, got, tt.want)
			}
		})
	}
}
