package condition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Операторы сравнения, общие для триггеров и правил роутера.
const (
	OpEquals         = "equals"
	OpNotEquals      = "not_equals"
	OpContains       = "contains"
	OpNotContains    = "not_contains"
	OpStartsWith     = "starts_with"
	OpEndsWith       = "ends_with"
	OpGreaterThan    = "greater_than"
	OpLessThan       = "less_than"
	OpGreaterOrEqual = "greater_or_equal"
	OpLessOrEqual    = "less_or_equal"
	OpIsEmpty        = "is_empty"
	OpIsNotEmpty     = "is_not_empty"
	OpMatches        = "matches"
	OpExists         = "exists"
)

var ErrUnknownOperator = errors.New("unknown operator")

// Compare сравнивает значение входа с ожидаемым. present=false означает, что вход не связан.
// Строковые сравнения регистронезависимы.
func Compare(actual any, present bool, op, expected string) (bool, error) {
	if op == "" {
		op = OpEquals
	}
	text := strings.TrimSpace(domain.Stringify(actual))
	want := strings.TrimSpace(expected)

	switch op {
	case OpExists:
		return present, nil
	case OpIsEmpty:
		return !present || text == "", nil
	case OpIsNotEmpty:
		return present && text != "", nil
	}
	if !present {
		// Несвязанный вход удовлетворяет только отрицательным операторам
		return op == OpNotEquals || op == OpNotContains, nil
	}

	switch op {
	case OpEquals:
		return strings.EqualFold(text, want), nil
	case OpNotEquals:
		return !strings.EqualFold(text, want), nil
	case OpContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(want)), nil
	case OpNotContains:
		return !strings.Contains(strings.ToLower(text), strings.ToLower(want)), nil
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(text), strings.ToLower(want)), nil
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(text), strings.ToLower(want)), nil
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return compareNumbers(text, want, op)
	case OpMatches:
		re, err := regexp.Compile(want)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", want, err)
		}
		return re.MatchString(text), nil
	default:
		return false, fmt.Errorf("%w: %s", ErrUnknownOperator, op)
	}
}

func compareNumbers(text, want, op string) (bool, error) {
	a, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return false, fmt.Errorf("value %q is not a number", text)
	}
	b, err := strconv.ParseFloat(want, 64)
	if err != nil {
		return false, fmt.Errorf("operand %q is not a number", want)
	}
	switch op {
	case OpGreaterThan:
		return a > b, nil
	case OpLessThan:
		return a < b, nil
	case OpGreaterOrEqual:
		return a >= b, nil
	default:
		return a <= b, nil
	}
}

// Lookup достаёт значение по точечному пути (a.b.0.c) из декодированного JSON.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return root, true
	}
	cur := root
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}
