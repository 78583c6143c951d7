package pattern

import (
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
)

// Func maps an index to a value. Returning an error, panicking or producing
// a non-finite value turns that index into a rest.
type Func func(i int) (float64, error)

type ExprResult struct {
	Steps    []Step
	Values   []float64
	Warnings []error
}

// Expr evaluates f for every index in [0, length).
func Expr(f Func, length int) ExprResult {
	if length < 0 {
		length = 0
	}
	res := ExprResult{
		Steps:  make([]Step, length),
		Values: make([]float64, length),
	}
	for i := 0; i < length; i++ {
		v, err := evalIndex(f, i)
		if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			err = errors.Errorf("non-finite value %v", v)
		}
		if err != nil {
			res.Steps[i] = Rest()
			res.Values[i] = math.NaN()
			res.Warnings = append(res.Warnings, &GeneratorError{Index: i, Err: err})
			continue
		}
		res.Steps[i] = Note(Value{Num: v})
		res.Values[i] = v
	}
	return res
}

func evalIndex(f Func, i int) (v float64, err error) {
	if f == nil {
		return 0, errors.New("nil generator")
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()
	return f(i)
}

// Pure adapts an infallible mapping.
func Pure(f func(i int) float64) Func {
	return func(i int) (float64, error) { return f(i), nil }
}

// CompileTemplate builds a generator from a text/template expression with
// the sprig function map, e.g. `{{ mod (mul .i 3) 7 }}`. The template sees
// .i (index) and .n (length) and must print a number.
func CompileTemplate(src string, length int) (Func, error) {
	if err := CheckLength(length); err != nil {
		return nil, errors.Wrap(err, "compile expression")
	}
	tmpl, err := template.New("expr").Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "compile expression")
	}
	return func(i int) (float64, error) {
		var b strings.Builder
		if err := tmpl.Execute(&b, map[string]any{"i": i, "n": length}); err != nil {
			return 0, err
		}
		out := strings.TrimSpace(b.String())
		v, err := strconv.ParseFloat(out, 64)
		if err != nil {
			return 0, errors.Errorf("expression printed %q", out)
		}
		return v, nil
	}, nil
}

// ExprFloats returns only the finite values, dropping failed indices. It is
// used where a plain table is needed, such as temperaments.
func ExprFloats(f Func, length int) ([]float64, []error) {
	res := Expr(f, length)
	out := make([]float64, 0, length)
	for _, v := range res.Values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out, res.Warnings
}
