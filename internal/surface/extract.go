package surface

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"unicode"
	"unicode/utf8"
)

// Extract parses Go source and summarizes its top-level declarations.
// The summary is a pure function of the content, never of the path.
func Extract(path string, content []byte) (*Snapshot, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.SkipObjectResolution)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: err.Error()}
	}

	snap := &Snapshot{
		ModulePath:  path,
		ContentHash: ContentHash(content),
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			snap.Symbols = append(snap.Symbols, funcSymbol(d))
		case *ast.GenDecl:
			switch d.Tok {
			case token.TYPE:
				for _, s := range d.Specs {
					ts, ok := s.(*ast.TypeSpec)
					if !ok {
						continue
					}
					snap.Symbols = append(snap.Symbols, Symbol{
						Name:          ts.Name.Name,
						Kind:          KindType,
						Visibility:    visibilityOf(ts.Name.Name),
						SignatureHash: signatureHash(KindType, nil, []string{exprString(ts.Type)}),
					})
				}
			case token.CONST, token.VAR:
				kind := KindConst
				if d.Tok == token.VAR {
					kind = KindVar
				}
				for _, s := range d.Specs {
					vs, ok := s.(*ast.ValueSpec)
					if !ok {
						continue
					}
					typeStr := exprString(vs.Type)
					for _, name := range vs.Names {
						if name.Name == "_" {
							continue
						}
						snap.Symbols = append(snap.Symbols, Symbol{
							Name:          name.Name,
							Kind:          kind,
							Visibility:    visibilityOf(name.Name),
							SignatureHash: signatureHash(kind, nil, []string{typeStr}),
						})
					}
				}
			}
		}
	}

	sortSymbols(snap.Symbols)
	return snap, nil
}

func funcSymbol(d *ast.FuncDecl) Symbol {
	name := d.Name.Name
	kind := KindFunc
	visibility := visibilityOf(name)

	if d.Recv != nil && len(d.Recv.List) > 0 {
		kind = KindMethod
		recv := receiverTypeName(d.Recv.List[0].Type)
		name = recv + "." + name
		// A method on an unexported type is outside the public surface
		// regardless of its own name.
		if visibilityOf(recv) == VisibilityPrivate {
			visibility = VisibilityPrivate
		}
	}

	params := paramList(d.Type.Params)
	results := resultList(d.Type.Results)

	return Symbol{
		Name:          name,
		Kind:          kind,
		Visibility:    visibility,
		Params:        params,
		Results:       results,
		SignatureHash: signatureHash(kind, params, results),
	}
}

func paramList(fields *ast.FieldList) []Param {
	if fields == nil {
		return nil
	}
	var out []Param
	for _, field := range fields.List {
		typeStr := exprString(field.Type)
		if len(field.Names) == 0 {
			out = append(out, Param{Type: typeStr})
			continue
		}
		for _, name := range field.Names {
			out = append(out, Param{Name: name.Name, Type: typeStr})
		}
	}
	return out
}

func resultList(fields *ast.FieldList) []string {
	if fields == nil {
		return nil
	}
	var out []string
	for _, field := range fields.List {
		n := len(field.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, exprString(field.Type))
		}
	}
	return out
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverTypeName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverTypeName(t.X)
	case *ast.IndexListExpr:
		return receiverTypeName(t.X)
	}
	return fmt.Sprintf("%T", expr)
}

func exprString(expr ast.Expr) string {
	if expr == nil {
		return ""
	}
	return types.ExprString(expr)
}

func visibilityOf(name string) Visibility {
	r, _ := utf8.DecodeRuneInString(name)
	if unicode.IsUpper(r) {
		return VisibilityPublic
	}
	return VisibilityPrivate
}
