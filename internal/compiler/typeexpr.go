package compiler

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// TypeShape is what the compiler needs to know about a declared type
// expression.
type TypeShape struct {
	Ref      bool     // top-level pointer: a borrowed parameter
	Packages []string // package qualifiers used, in order of appearance
}

// ParseType checks that expr is a Go type expression whose values can cross
// the bridge: no funcs, channels or non-empty interfaces.
func ParseType(expr string) (TypeShape, error) {
	var shape TypeShape
	if expr == "" {
		return shape, fmt.Errorf("empty type expression")
	}
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return shape, fmt.Errorf("invalid type expression %q: %w", expr, err)
	}
	if star, ok := node.(*ast.StarExpr); ok {
		shape.Ref = true
		node = star.X
	}
	if err := checkValueType(node, &shape); err != nil {
		return shape, fmt.Errorf("type %q: %w", expr, err)
	}
	return shape, nil
}

func checkValueType(node ast.Expr, shape *TypeShape) error {
	switch n := node.(type) {
	case *ast.Ident:
		if n.Name == "error" {
			return fmt.Errorf("error values cannot be encoded")
		}
		if token.IsKeyword(n.Name) {
			return fmt.Errorf("%s is not a type", n.Name)
		}
		return nil
	case *ast.SelectorExpr:
		pkg, ok := n.X.(*ast.Ident)
		if !ok {
			return fmt.Errorf("qualified type must be pkg.Type")
		}
		shape.Packages = append(shape.Packages, pkg.Name)
		return nil
	case *ast.StarExpr:
		return checkValueType(n.X, shape)
	case *ast.ParenExpr:
		return checkValueType(n.X, shape)
	case *ast.ArrayType:
		if n.Len != nil {
			if _, ok := n.Len.(*ast.BasicLit); !ok {
				return fmt.Errorf("array length must be a literal")
			}
		}
		return checkValueType(n.Elt, shape)
	case *ast.MapType:
		if err := checkValueType(n.Key, shape); err != nil {
			return err
		}
		return checkValueType(n.Value, shape)
	case *ast.StructType:
		if n.Fields != nil && len(n.Fields.List) > 0 {
			return fmt.Errorf("inline structs are not supported, declare a named type")
		}
		return nil
	case *ast.InterfaceType:
		if n.Methods != nil && len(n.Methods.List) > 0 {
			return fmt.Errorf("interfaces with methods cannot be decoded")
		}
		return nil
	case *ast.IndexExpr:
		if err := checkValueType(n.X, shape); err != nil {
			return err
		}
		return checkValueType(n.Index, shape)
	case *ast.IndexListExpr:
		if err := checkValueType(n.X, shape); err != nil {
			return err
		}
		for _, idx := range n.Indices {
			if err := checkValueType(idx, shape); err != nil {
				return err
			}
		}
		return nil
	case *ast.FuncType:
		return fmt.Errorf("functions cannot cross the bridge")
	case *ast.ChanType:
		return fmt.Errorf("channels cannot cross the bridge")
	default:
		return fmt.Errorf("unsupported type syntax %T", node)
	}
}
