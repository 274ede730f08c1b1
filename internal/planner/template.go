package planner

import (
	"encoding/json"
	"strings"
)

// Template is a JSON-like input template with tagged blackboard references.
// The tagged form removes the ambiguity between a literal string that
// happens to start with "$" and an actual cross-step reference: parsing is
// the only place the "$" convention exists, resolution works purely on the
// tagged tree.
type Template interface {
	isTemplate()
}

// Literal passes a value through unchanged.
type Literal struct {
	Value any
}

// Reference resolves to a prior step's output (or an initial blackboard
// entry), optionally descending into it along a dot-separated path. A
// missing key resolves to nil, not an error.
type Reference struct {
	Step string
	Path string
}

// Object is a template with templated fields.
type Object map[string]Template

// Array is a template with templated elements.
type Array []Template

func (Literal) isTemplate()   {}
func (Reference) isTemplate() {}
func (Object) isTemplate()    {}
func (Array) isTemplate()     {}

// ParseTemplate converts plain JSON/YAML data into the tagged template
// form. A string leaf "$step" or "$step.path.to.field" becomes a Reference;
// a leading "$$" escapes a literal dollar sign.
func ParseTemplate(v any) Template {
	switch value := v.(type) {
	case string:
		if strings.HasPrefix(value, "$$") {
			return Literal{Value: value[1:]}
		}
		if strings.HasPrefix(value, "$") && len(value) > 1 {
			step, path, _ := strings.Cut(value[1:], ".")
			return Reference{Step: step, Path: path}
		}
		return Literal{Value: value}
	case map[string]any:
		obj := make(Object, len(value))
		for k, field := range value {
			obj[k] = ParseTemplate(field)
		}
		return obj
	case []any:
		arr := make(Array, len(value))
		for i, elem := range value {
			arr[i] = ParseTemplate(elem)
		}
		return arr
	default:
		return Literal{Value: v}
	}
}

// References returns the distinct step names a template reads from, in no
// particular order.
func References(t Template) []string {
	seen := make(map[string]bool)
	collectRefs(t, seen)
	refs := make([]string, 0, len(seen))
	for step := range seen {
		refs = append(refs, step)
	}
	return refs
}

func collectRefs(t Template, seen map[string]bool) {
	switch value := t.(type) {
	case Reference:
		seen[value.Step] = true
	case Object:
		for _, field := range value {
			collectRefs(field, seen)
		}
	case Array:
		for _, elem := range value {
			collectRefs(elem, seen)
		}
	}
}

// Resolve walks the template, substituting references from the lookup. The
// result is plain data ready to hand to a tool.
func Resolve(t Template, lookup func(string) (any, bool)) any {
	switch value := t.(type) {
	case Literal:
		return value.Value
	case Reference:
		base, ok := lookup(value.Step)
		if !ok {
			return nil
		}
		if value.Path == "" {
			return base
		}
		return descend(base, strings.Split(value.Path, "."))
	case Object:
		resolved := make(map[string]any, len(value))
		for k, field := range value {
			resolved[k] = Resolve(field, lookup)
		}
		return resolved
	case Array:
		resolved := make([]any, len(value))
		for i, elem := range value {
			resolved[i] = Resolve(elem, lookup)
		}
		return resolved
	default:
		return nil
	}
}

// descend walks a dot path into a step output. Outputs are typically typed
// structs, so non-map nodes are normalized through their JSON form before
// each lookup.
func descend(node any, path []string) any {
	for _, key := range path {
		asMap, ok := node.(map[string]any)
		if !ok {
			data, err := json.Marshal(node)
			if err != nil {
				return nil
			}
			if err := json.Unmarshal(data, &asMap); err != nil {
				return nil
			}
		}
		node, ok = asMap[key]
		if !ok {
			return nil
		}
	}
	return node
}
