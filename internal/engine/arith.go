package engine

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"

	"github.com/DoyleJ11/classroom-games-backend/internal/apperr"
)

const (
	maxExprLen = 120
	maxExprAbs = 1_000_000_000
)

// evalTarget evaluates an arithmetic expression built from + - * / and
// parentheses. Every literal must come from numbers, each used at most as
// often as it appears there. Division must be exact.
func evalTarget(expr string, numbers []int) (int, error) {
	if len(expr) == 0 || len(expr) > maxExprLen {
		return 0, apperr.Invalid("expression must be 1-%d characters", maxExprLen)
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return 0, apperr.Invalid("cannot read expression")
	}
	avail := make(map[int]int, len(numbers))
	for _, n := range numbers {
		avail[n]++
	}
	return evalNode(node, avail)
}

func evalNode(n ast.Expr, avail map[int]int) (int, error) {
	switch n := n.(type) {
	case *ast.ParenExpr:
		return evalNode(n.X, avail)

	case *ast.BasicLit:
		if n.Kind != token.INT {
			return 0, apperr.Invalid("only whole numbers are allowed")
		}
		v, err := strconv.Atoi(n.Value)
		if err != nil {
			return 0, apperr.Invalid("bad number %q", n.Value)
		}
		if avail[v] == 0 {
			return 0, apperr.Invalid("%d is not available", v)
		}
		avail[v]--
		return v, nil

	case *ast.BinaryExpr:
		x, err := evalNode(n.X, avail)
		if err != nil {
			return 0, err
		}
		y, err := evalNode(n.Y, avail)
		if err != nil {
			return 0, err
		}
		var v int
		switch n.Op {
		case token.ADD:
			v = x + y
		case token.SUB:
			v = x - y
		case token.MUL:
			v = x * y
		case token.QUO:
			if y == 0 || x%y != 0 {
				return 0, apperr.Invalid("division must come out even")
			}
			v = x / y
		default:
			return 0, apperr.Invalid("only + - * / and parentheses are allowed")
		}
		if v > maxExprAbs || v < -maxExprAbs {
			return 0, apperr.Invalid("intermediate result is too large")
		}
		return v, nil
	}
	return 0, apperr.Invalid("only + - * / and parentheses are allowed")
}
