package router

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/condition"
	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Decision — результат маршрутизации: id назначений в порядке их order.
type Decision struct {
	DestinationIDs []string `json:"destination_ids"`
	Warnings       []string `json:"warnings,omitempty"`
}

// Route выбирает назначения. Стратегия all_destinations (и пустая) отдаёт все назначения,
// любая другая трактуется как rule_based: срабатывают все правила, чьи условия истинны.
func Route(cfg *domain.RouterConfig, destinations []domain.DestinationElement, bound *domain.Bindings) Decision {
	ordered := orderDestinations(destinations)

	if cfg == nil || cfg.Strategy == "" || cfg.Strategy == domain.RouteAllDestinations {
		ids := make([]string, 0, len(ordered))
		for _, d := range ordered {
			ids = append(ids, d.ID)
		}
		return Decision{DestinationIDs: ids}
	}

	if bound == nil {
		bound = domain.NewBindings()
	}

	var dec Decision
	known := make(map[string]struct{}, len(ordered))
	for _, d := range ordered {
		known[d.ID] = struct{}{}
	}

	selected := make(map[string]struct{})
	for _, rule := range cfg.Rules {
		fired, err := evalRule(rule, bound)
		if err != nil {
			dec.Warnings = append(dec.Warnings, fmt.Sprintf("rule %s: %v", rule.ID, err))
			continue
		}
		if !fired {
			continue
		}
		if _, ok := known[rule.DestinationID]; !ok {
			dec.Warnings = append(dec.Warnings,
				fmt.Sprintf("rule %s: %v: %s", rule.ID, domain.ErrUnknownDestination, rule.DestinationID))
			continue
		}
		selected[rule.DestinationID] = struct{}{}
	}

	dec.DestinationIDs = make([]string, 0, len(selected))
	for _, d := range ordered {
		if _, ok := selected[d.ID]; ok {
			dec.DestinationIDs = append(dec.DestinationIDs, d.ID)
			// повторный id в списке назначений не дублирует выбор
			delete(selected, d.ID)
		}
	}
	return dec
}

// Select возвращает элементы назначений для решения.
func Select(destinations []domain.DestinationElement, dec Decision) []domain.DestinationElement {
	byID := make(map[string]domain.DestinationElement, len(destinations))
	for _, d := range destinations {
		if _, ok := byID[d.ID]; !ok {
			byID[d.ID] = d
		}
	}
	out := make([]domain.DestinationElement, 0, len(dec.DestinationIDs))
	for _, id := range dec.DestinationIDs {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

func orderDestinations(destinations []domain.DestinationElement) []domain.DestinationElement {
	out := make([]domain.DestinationElement, len(destinations))
	copy(out, destinations)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func evalRule(rule domain.RouterRule, bound *domain.Bindings) (bool, error) {
	if len(rule.Conditions) == 0 {
		return false, nil
	}

	results := make(map[int]bool, len(rule.Conditions))
	check := func(i int) (bool, error) {
		if v, ok := results[i]; ok {
			return v, nil
		}
		c := rule.Conditions[i]
		val, present := bound.Lookup(c.InputID, c.InputType)
		ok, err := condition.Compare(val, present, c.Operator, c.Value)
		if err != nil {
			return false, fmt.Errorf("condition %s: %w", c.ID, err)
		}
		results[i] = ok
		return ok, nil
	}

	if strings.TrimSpace(rule.ConditionLogic) == "" {
		for i := range rule.Conditions {
			ok, err := check(i)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	expr, err := condition.ParseLogic(rule.ConditionLogic)
	if err != nil {
		return false, err
	}
	index := make(map[string]int)
	for _, ref := range expr.Refs() {
		i, err := resolveRef(rule.Conditions, ref)
		if err != nil {
			return false, err
		}
		index[ref] = i
	}
	return expr.Eval(func(ref string) (bool, error) {
		return check(index[ref])
	})
}

// resolveRef: сначала id условия, затем 1-based индекс.
func resolveRef(conds []domain.Condition, ref string) (int, error) {
	for i, c := range conds {
		if c.ID != "" && c.ID == ref {
			return i, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(conds) {
		return n - 1, nil
	}
	return 0, fmt.Errorf("%w: unknown condition reference %q", condition.ErrInvalidExpression, ref)
}
