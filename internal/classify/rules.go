package classify

import (
	"strings"

	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
)

// ruleMatch is a pre-classification hit: a configured keyword rule resolved
// the category without consulting the reasoning service.
type ruleMatch struct {
	Category string
	Reason   string
}

// matchRule runs the configured keyword rules against one transaction.
// Rules fire on the upper-cased description only; direction decides which
// side of the rule applies. First matching rule wins.
func matchRule(rules []config.KeywordRule, tx domain.Transaction) *ruleMatch {
	desc := strings.ToUpper(tx.Description)

	for _, rule := range rules {
		if !containsAnyKeyword(desc, rule.Keywords) {
			continue
		}

		category := rule.DebitCategory
		if tx.Direction() == domain.DirectionCredit {
			category = rule.CreditCategory
		}
		if category == "" {
			// Rule does not cover this direction; keep looking.
			continue
		}
		return &ruleMatch{Category: category, Reason: rule.Reason}
	}
	return nil
}

func containsAnyKeyword(desc string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(desc, strings.ToUpper(kw)) {
			return true
		}
	}
	return false
}
