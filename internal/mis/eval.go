package mis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatRule is one named, ordered MIS line computed by a formula.
type FormatRule struct {
	Name    string `json:"name" validate:"required,max=200"`
	Formula string `json:"formula" validate:"required,max=2000"`
}

// Policy decides what happens when a rule cannot be evaluated.
type Policy string

const (
	// AbortOnError stops evaluation at the first failing rule.
	AbortOnError Policy = "abort"
	// SkipInvalid marks the failing row invalid and keeps going.
	SkipInvalid Policy = "skip"
)

// ParsePolicy reads a policy name; blank selects AbortOnError.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", AbortOnError:
		return AbortOnError, nil
	case SkipInvalid:
		return SkipInvalid, nil
	}
	return "", fmt.Errorf("mis: unknown error policy %q", s)
}

// Options tunes evaluation.
type Options struct {
	Policy Policy
	// Precision is the number of decimals results are rounded to. Zero means 2.
	Precision int32
}

// UnknownOperandError reports an operand that is neither an earlier rule nor a
// trial balance particular.
type UnknownOperandError struct {
	Rule    string
	Operand string
}

func (e *UnknownOperandError) Error() string {
	return fmt.Sprintf("mis: rule %q references unknown operand %q", e.Rule, e.Operand)
}

// InvalidDependencyError reports a rule that depends on a rule which failed.
type InvalidDependencyError struct {
	Rule    string
	Operand string
}

func (e *InvalidDependencyError) Error() string {
	return fmt.Sprintf("mis: rule %q depends on invalid rule %q", e.Rule, e.Operand)
}

// ErrDuplicateRule indicates two rules with the same name.
var ErrDuplicateRule = errors.New("mis: duplicate rule name")

// RuleError ties an evaluation failure to the rule position.
type RuleError struct {
	Index int
	Rule  string
	Err   error
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("mis: rule %d (%s): %v", e.Index+1, e.Rule, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }

// Row is one evaluated MIS line.
type Row struct {
	Name    string                     `json:"name"`
	Formula string                     `json:"formula"`
	Values  map[string]decimal.Decimal `json:"values"`
	Total   decimal.Decimal            `json:"total"`
	Err     error                      `json:"-"`
	Error   string                     `json:"error,omitempty"`
}

// Valid reports whether the row evaluated.
func (r Row) Valid() bool { return r.Err == nil }

// Report is the evaluated MIS table.
type Report struct {
	Months []string `json:"months"`
	Rows   []Row    `json:"rows"`
}

// Invalid counts rows that failed under SkipInvalid.
func (r Report) Invalid() int {
	n := 0
	for _, row := range r.Rows {
		if !row.Valid() {
			n++
		}
	}
	return n
}

// totalColumn is the pseudo-month used to evaluate the Total column.
const totalColumn = "\x00total"

type result struct {
	values map[string]decimal.Decimal
	failed bool
}

type evaluator struct {
	tb      *TrialBalance
	results map[string]result
	rule    string
}

func (ev *evaluator) operand(name, month string) (decimal.Decimal, error) {
	key := foldName(name)
	if res, ok := ev.results[key]; ok {
		if res.failed {
			return decimal.Zero, &InvalidDependencyError{Rule: ev.rule, Operand: name}
		}
		return res.values[month], nil
	}
	if line, ok := ev.tb.Lookup(name); ok {
		if month == totalColumn {
			return line.Total, nil
		}
		return line.Values[month], nil
	}
	return decimal.Zero, &UnknownOperandError{Rule: ev.rule, Operand: name}
}

// eval walks the tree. Division by zero yields zero.
func (ev *evaluator) eval(n Node, month string) (decimal.Decimal, error) {
	switch v := n.(type) {
	case Number:
		return v.Value, nil
	case Ref:
		return ev.operand(v.Name, month)
	case Unary:
		x, err := ev.eval(v.X, month)
		if err != nil {
			return decimal.Zero, err
		}
		return x.Neg(), nil
	case Binary:
		l, err := ev.eval(v.L, month)
		if err != nil {
			return decimal.Zero, err
		}
		r, err := ev.eval(v.R, month)
		if err != nil {
			return decimal.Zero, err
		}
		switch v.Op {
		case '+':
			return l.Add(r), nil
		case '-':
			return l.Sub(r), nil
		case '*':
			return l.Mul(r), nil
		case '/':
			if r.IsZero() {
				return decimal.Zero, nil
			}
			return l.Div(r), nil
		}
		return decimal.Zero, fmt.Errorf("mis: unknown operator %q", v.Op)
	}
	return decimal.Zero, fmt.Errorf("mis: unknown node %T", n)
}

// Evaluate computes every rule in order for each month of tb and for the
// Total column. A rule may reference rules defined before it and any
// particular; earlier rules shadow particulars of the same name.
func Evaluate(tb *TrialBalance, rules []FormatRule, opts Options) (Report, error) {
	if tb == nil {
		tb = NewTrialBalance()
	}
	precision := opts.Precision
	if precision == 0 {
		precision = 2
	}
	months := append([]string(nil), tb.Months...)
	report := Report{Months: months, Rows: make([]Row, 0, len(rules))}
	ev := &evaluator{tb: tb, results: make(map[string]result, len(rules))}

	for i, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		row := Row{Name: name, Formula: rule.Formula, Values: make(map[string]decimal.Decimal, len(months))}
		values, err := ev.evaluateRule(name, rule.Formula, months)
		if err != nil {
			ruleErr := &RuleError{Index: i, Rule: name, Err: err}
			if opts.Policy != SkipInvalid {
				return Report{}, ruleErr
			}
			row.Err = err
			row.Error = err.Error()
			if key := foldName(name); key != "" {
				if _, exists := ev.results[key]; !exists {
					ev.results[key] = result{failed: true}
				}
			}
			report.Rows = append(report.Rows, row)
			continue
		}
		ev.results[foldName(name)] = result{values: values}
		for _, m := range months {
			row.Values[m] = values[m].Round(precision)
		}
		row.Total = values[totalColumn].Round(precision)
		report.Rows = append(report.Rows, row)
	}
	return report, nil
}

func (ev *evaluator) evaluateRule(name, formula string, months []string) (map[string]decimal.Decimal, error) {
	if name == "" {
		return nil, errors.New("mis: rule name is required")
	}
	if _, exists := ev.results[foldName(name)]; exists {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateRule, name)
	}
	node, err := Parse(formula)
	if err != nil {
		return nil, err
	}
	ev.rule = name
	values := make(map[string]decimal.Decimal, len(months)+1)
	for _, m := range append(append([]string(nil), months...), totalColumn) {
		v, err := ev.eval(node, m)
		if err != nil {
			return nil, err
		}
		values[m] = v
	}
	return values, nil
}

// ValidateRules checks that every rule has a unique name and a formula that
// parses. Operands are not checked; they depend on the trial balance.
func ValidateRules(rules []FormatRule) error {
	if len(rules) == 0 {
		return errors.New("mis: at least one rule is required")
	}
	seen := make(map[string]bool, len(rules))
	for i, rule := range rules {
		name := strings.TrimSpace(rule.Name)
		if name == "" {
			return &RuleError{Index: i, Rule: name, Err: errors.New("name is required")}
		}
		key := foldName(name)
		if seen[key] {
			return &RuleError{Index: i, Rule: name, Err: ErrDuplicateRule}
		}
		seen[key] = true
		if _, err := Parse(rule.Formula); err != nil {
			return &RuleError{Index: i, Rule: name, Err: err}
		}
	}
	return nil
}
