package pattern

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/randalmurphal/eventrouter/pkg/eventrouter/expr"
)

// Operator is a comparison kind in an attribute predicate.
type Operator int

const (
	OpEq Operator = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
	OpIn
	OpNin
	OpExists
)

var operatorNames = map[Operator]string{
	OpEq:     "$eq",
	OpNe:     "$ne",
	OpGt:     "$gt",
	OpGte:    "$gte",
	OpLt:     "$lt",
	OpLte:    "$lte",
	OpIn:     "$in",
	OpNin:    "$nin",
	OpExists: "$exists",
}

// String returns the operator key as written in attribute maps.
func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOperator resolves an operator key such as "$gte".
func ParseOperator(key string) (Operator, error) {
	for op, name := range operatorNames {
		if name == key {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown attribute operator %q", key)
}

// Condition is a single operator applied to an attribute value.
type Condition struct {
	Op    Operator
	Value any
}

// Predicate is a conjunction of conditions on one attribute path.
type Predicate []Condition

// Eq requires equality. Numeric kinds compare by value.
func Eq(v any) Predicate { return Predicate{{Op: OpEq, Value: v}} }

// Ne requires inequality.
func Ne(v any) Predicate { return Predicate{{Op: OpNe, Value: v}} }

// Gt requires a numeric value greater than v.
func Gt(v any) Predicate { return Predicate{{Op: OpGt, Value: v}} }

// Gte requires a numeric value greater than or equal to v.
func Gte(v any) Predicate { return Predicate{{Op: OpGte, Value: v}} }

// Lt requires a numeric value less than v.
func Lt(v any) Predicate { return Predicate{{Op: OpLt, Value: v}} }

// Lte requires a numeric value less than or equal to v.
func Lte(v any) Predicate { return Predicate{{Op: OpLte, Value: v}} }

// In requires the value to equal one element of values.
func In(values ...any) Predicate { return Predicate{{Op: OpIn, Value: values}} }

// Nin requires the value to equal no element of values.
func Nin(values ...any) Predicate { return Predicate{{Op: OpNin, Value: values}} }

// Exists requires the attribute to be present (true) or absent (false).
func Exists(present bool) Predicate { return Predicate{{Op: OpExists, Value: present}} }

// All combines predicates into one conjunction.
func All(preds ...Predicate) Predicate {
	var out Predicate
	for _, p := range preds {
		out = append(out, p...)
	}
	return out
}

// Evaluate applies the predicate to a resolved attribute.
// found reports whether the attribute path exists in the payload.
//
// A missing attribute fails every predicate except one made only of
// Exists conditions, which is decided by presence alone.
func (p Predicate) Evaluate(actual any, found bool) bool {
	if !found && !p.onlyExists() {
		return false
	}
	for _, c := range p {
		if !c.evaluate(actual, found) {
			return false
		}
	}
	return true
}

func (p Predicate) onlyExists() bool {
	if len(p) == 0 {
		return false
	}
	for _, c := range p {
		if c.Op != OpExists {
			return false
		}
	}
	return true
}

func (c Condition) evaluate(actual any, found bool) bool {
	switch c.Op {
	case OpEq:
		return expr.Equal(actual, c.Value)
	case OpNe:
		return !expr.Equal(actual, c.Value)
	case OpGt:
		return expr.GreaterThan(actual, c.Value)
	case OpGte:
		return expr.GreaterOrEqual(actual, c.Value)
	case OpLt:
		return expr.LessThan(actual, c.Value)
	case OpLte:
		return expr.LessOrEqual(actual, c.Value)
	case OpIn:
		return expr.Contains(c.Value, actual)
	case OpNin:
		return !expr.Contains(c.Value, actual)
	case OpExists:
		want, _ := c.Value.(bool)
		return found == want
	default:
		return false
	}
}

// String renders the predicate deterministically. Strings are quoted so
// that Eq("1") and Eq(1) render differently; numbers of any kind render by
// value because they compare by value.
func (p Predicate) String() string {
	parts := make([]string, len(p))
	for i, c := range p {
		parts[i] = c.Op.String() + ":" + renderOperand(c.Value)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func renderOperand(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = renderOperand(item)
		}
		return "[" + strings.Join(items, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]string, len(keys))
		for i, k := range keys {
			items[i] = strconv.Quote(k) + ":" + renderOperand(val[k])
		}
		return "{" + strings.Join(items, ",") + "}"
	}
	if _, numeric := expr.ToFloat64(v); numeric {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("%T(%v)", v, v)
}

// ParseAttributes converts the map form used in configuration files into
// predicates. Each value is either a literal, compared for equality, or a
// map of operator keys:
//
//	{"status": "active", "amount": {"$gte": 10, "$lt": 100}}
//
// Maps without operator keys are literals. Mixing operator and plain keys,
// unknown operators and malformed operands are errors.
func ParseAttributes(raw map[string]any) (map[string]Predicate, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]Predicate, len(raw))
	for path, spec := range raw {
		pred, err := parsePredicate(spec)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", path, err)
		}
		out[path] = pred
	}
	return out, nil
}

func parsePredicate(spec any) (Predicate, error) {
	ops, ok := spec.(map[string]any)
	if !ok || !hasOperatorKey(ops) {
		return Eq(spec), nil
	}

	keys := make([]string, 0, len(ops))
	for k := range ops {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pred := make(Predicate, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, "$") {
			return nil, fmt.Errorf("mixed operator and literal keys (%q)", key)
		}
		op, err := ParseOperator(key)
		if err != nil {
			return nil, err
		}
		operand := ops[key]
		switch op {
		case OpIn, OpNin:
			if kind := reflect.ValueOf(operand).Kind(); operand == nil || (kind != reflect.Slice && kind != reflect.Array) {
				return nil, fmt.Errorf("%s requires a list, got %T", op, operand)
			}
		case OpExists:
			if _, ok := operand.(bool); !ok {
				return nil, fmt.Errorf("%s requires a bool, got %T", op, operand)
			}
		}
		pred = append(pred, Condition{Op: op, Value: operand})
	}
	return pred, nil
}

func hasOperatorKey(m map[string]any) bool {
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return true
		}
	}
	return false
}
