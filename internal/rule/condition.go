package rule

import (
	"regexp"
	"strings"

	"github.com/yoshihiko555/takt/internal/models"
)

// conditionFnPattern recognizes the `ai("...")`, `any("...")`, and
// `all("...")` condition function forms from the piece YAML grammar.
var conditionFnPattern = regexp.MustCompile(`^(ai|any|all)\(\s*"(.*)"\s*\)$`)

// NormalizeRule classifies a freshly-parsed rule's condition, splitting
// the `ai(...)`/`any(...)`/`all(...)` wrapper (if present) from the
// plain condition text it carries, and setting IsAI/IsAggregate/
// AggregateType/AggregateText accordingly. Plain conditions are left
// untouched.
func NormalizeRule(r *models.Rule) {
	trimmed := strings.TrimSpace(r.Condition)
	m := conditionFnPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return
	}

	switch m[1] {
	case "ai":
		r.IsAI = true
		r.Condition = m[2]
	case "any":
		r.IsAggregate = true
		r.AggregateType = models.AggregateAny
		r.AggregateText = m[2]
	case "all":
		r.IsAggregate = true
		r.AggregateType = models.AggregateAll
		r.AggregateText = m[2]
	}
}

// NormalizePiece normalizes every rule of every movement (and nested
// parallel sub-movement) in p.
func NormalizePiece(p *models.Piece) {
	for i := range p.Movements {
		normalizeMovement(&p.Movements[i])
	}
}

func normalizeMovement(m *models.Movement) {
	for i := range m.Rules {
		NormalizeRule(&m.Rules[i])
	}
	for i := range m.Parallel {
		normalizeMovement(&m.Parallel[i])
	}
}
