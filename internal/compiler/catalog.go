package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/roach88/omnilink/internal/types"
)

// TypeDef is a custom type declared in a catalog.
type TypeDef struct {
	Name    string `json:"name"`
	Pattern string `json:"pattern"`

	// ConvertAs names an already registered type whose converter the new
	// type borrows ("int", "num", ...). Empty leaves captures as strings.
	ConvertAs string `json:"convert_as,omitempty"`
}

// Catalog is the compiled form of a CUE template catalog.
type Catalog struct {
	Types     []TypeDef `json:"types"`
	Templates []string  `json:"templates"`
}

// CompileCatalog parses a CUE value into a Catalog.
//
// The value has the shape:
//
//	types: square: {pattern: "[a-h][1-8]"}
//	types: count:  {pattern: "\\d+", convert: "int"}
//	templates: ["move [color] [piece] from [from:square] to [to:square]"]
//
// Both fields are optional but the catalog must declare at least one
// template. Type declaration order is preserved.
func CompileCatalog(v cue.Value) (*Catalog, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cat := &Catalog{}

	typesVal := v.LookupPath(cue.ParsePath("types"))
	if typesVal.Exists() {
		iter, err := typesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			def, err := parseTypeDef(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			cat.Types = append(cat.Types, def)
		}
	}

	tmplVal := v.LookupPath(cue.ParsePath("templates"))
	if !tmplVal.Exists() {
		return nil, &CompileError{
			Field:   "templates",
			Message: "templates is required",
			Pos:     v.Pos(),
		}
	}
	list, err := tmplVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "templates",
				Message: fmt.Sprintf("template must be a string: %v", err),
				Pos:     list.Value().Pos(),
			}
		}
		cat.Templates = append(cat.Templates, s)
	}
	if len(cat.Templates) == 0 {
		return nil, &CompileError{
			Field:   "templates",
			Message: "at least one template is required",
			Pos:     tmplVal.Pos(),
		}
	}

	return cat, nil
}

func parseTypeDef(name string, v cue.Value) (TypeDef, error) {
	def := TypeDef{Name: name}

	// Shorthand: types: square: "[a-h][1-8]"
	if s, err := v.String(); err == nil {
		def.Pattern = s
		return def, nil
	}

	patVal := v.LookupPath(cue.ParsePath("pattern"))
	if !patVal.Exists() {
		return def, &CompileError{
			Field:   "types." + name,
			Message: "pattern is required",
			Pos:     v.Pos(),
		}
	}
	pattern, err := patVal.String()
	if err != nil {
		return def, formatCUEError(err)
	}
	def.Pattern = pattern

	convVal := v.LookupPath(cue.ParsePath("convert"))
	if convVal.Exists() {
		conv, err := convVal.String()
		if err != nil {
			return def, formatCUEError(err)
		}
		def.ConvertAs = conv
	}

	return def, nil
}

// Apply registers the catalog's types into reg, in declaration order.
// A ConvertAs naming an unknown type fails with *UnknownTypeError.
func (c *Catalog) Apply(reg *types.Registry) error {
	for _, def := range c.Types {
		var conv types.Converter
		if def.ConvertAs != "" {
			base, ok := reg.Get(def.ConvertAs)
			if !ok {
				return &UnknownTypeError{Type: def.ConvertAs, Template: "types." + def.Name}
			}
			conv = base.Convert
		}
		reg.Register(def.Name, def.Pattern, conv)
	}
	return nil
}
