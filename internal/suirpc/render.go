package suirpc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EmptyPackageSource stands in for a package with no modules.
const EmptyPackageSource = "// Empty package"

// RenderSource turns normalized modules into Move-like pseudo-source the
// static analyzer can scan: a "// Module:" header per module, struct
// declarations with their fields, and exposed function signatures with
// stub bodies. Modules, structs and functions are emitted in name order.
func RenderSource(modules map[string]NormalizedModule) string {
	if len(modules) == 0 {
		return EmptyPackageSource
	}

	var b strings.Builder
	for _, name := range sortedKeys(modules) {
		mod := modules[name]
		fmt.Fprintf(&b, "// Module: %s\n", name)

		for _, sname := range sortedKeys(mod.Structs) {
			fmt.Fprintf(&b, "struct %s {\n", sname)
			for _, f := range mod.Structs[sname].Fields {
				fieldName := f.Name
				if fieldName == "" {
					fieldName = "unknown"
				}
				fmt.Fprintf(&b, "  %s: %s,\n", fieldName, renderType(f.Type))
			}
			b.WriteString("}\n\n")
		}

		for _, fname := range sortedKeys(mod.ExposedFunctions) {
			fn := mod.ExposedFunctions[fname]
			visibility := strings.ToLower(fn.Visibility)
			if visibility == "" {
				visibility = "private"
			}
			b.WriteString(visibility + " ")
			if fn.IsEntry {
				b.WriteString("entry ")
			}
			params := make([]string, len(fn.Parameters))
			for i, p := range fn.Parameters {
				params[i] = "param: " + renderType(p)
			}
			fmt.Fprintf(&b, "fun %s(%s) {\n  // Function body\n}\n\n", fname, strings.Join(params, ", "))
		}
	}
	return b.String()
}

// renderType prints a normalized Move type the way it reads in source.
// Unrecognised shapes fall back to compact JSON.
func renderType(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown"
	}

	var prim string
	if err := json.Unmarshal(raw, &prim); err == nil {
		return strings.ToLower(prim)
	}

	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil || len(shape) != 1 {
		return string(raw)
	}
	for kind, inner := range shape {
		switch kind {
		case "Reference":
			return "&" + renderType(inner)
		case "MutableReference":
			return "&mut " + renderType(inner)
		case "Vector":
			return "vector<" + renderType(inner) + ">"
		case "TypeParameter":
			return "T" + string(inner)
		case "Struct":
			var s struct {
				Address       string            `json:"address"`
				Module        string            `json:"module"`
				Name          string            `json:"name"`
				TypeArguments []json.RawMessage `json:"typeArguments"`
			}
			if err := json.Unmarshal(inner, &s); err != nil {
				return string(raw)
			}
			out := fmt.Sprintf("%s::%s::%s", ShortID(s.Address), s.Module, s.Name)
			if len(s.TypeArguments) > 0 {
				args := make([]string, len(s.TypeArguments))
				for i, a := range s.TypeArguments {
					args[i] = renderType(a)
				}
				out += "<" + strings.Join(args, ", ") + ">"
			}
			return out
		}
	}
	return string(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
