// Package expreval compiles user-supplied row expressions (HiPS tile
// scoring formulas, region/CSV filter predicates) once via expr-lang/expr
// and evaluates them against a row's column values without reflecting over
// struct tags on every call.
package expreval

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the variable environment exposed to a compiled expression: column
// name to Go value (float64, int64, string, bool), plus row/index helpers.
type Env map[string]interface{}

// Program is a compiled expression ready for repeated evaluation against
// different row environments.
type Program struct {
	src string
	vm  *vm.Program
}

// Compile parses and type-checks src once. env is a representative
// environment (e.g. zero values for every column name that will appear at
// evaluation time) used for expr's static type checking.
func Compile(src string, env Env) (*Program, error) {
	p, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("expreval: compiling %q: %w", src, err)
	}
	return &Program{src: src, vm: p}, nil
}

// CompileBool is Compile plus a check that the result type is bool,
// for predicate expressions (region filters, row selection).
func CompileBool(src string, env Env) (*Program, error) {
	p, err := expr.Compile(src, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("expreval: compiling bool expression %q: %w", src, err)
	}
	return &Program{src: src, vm: p}, nil
}

// CompileFloat is Compile plus a check that the result type is a float64,
// for scoring expressions (HiPS tile-selection formulas).
func CompileFloat(src string, env Env) (*Program, error) {
	p, err := expr.Compile(src, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("expreval: compiling float expression %q: %w", src, err)
	}
	return &Program{src: src, vm: p}, nil
}

// Eval runs the compiled program against env and returns the raw result.
func (p *Program) Eval(env Env) (interface{}, error) {
	out, err := expr.Run(p.vm, env)
	if err != nil {
		return nil, fmt.Errorf("expreval: evaluating %q: %w", p.src, err)
	}
	return out, nil
}

// EvalBool runs the program and asserts a bool result.
func (p *Program) EvalBool(env Env) (bool, error) {
	out, err := p.Eval(env)
	if err != nil {
		return false, err
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expreval: %q did not evaluate to bool (got %T)", p.src, out)
	}
	return b, nil
}

// EvalFloat runs the program and asserts a float64 result.
func (p *Program) EvalFloat(env Env) (float64, error) {
	out, err := p.Eval(env)
	if err != nil {
		return 0, err
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("expreval: %q did not evaluate to a number (got %T)", p.src, out)
	}
}

func (p *Program) Source() string { return p.src }
