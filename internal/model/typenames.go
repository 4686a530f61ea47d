package model

import (
	"regexp"
	"strings"
)

var typeNameRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*`)

// builtinTypes are names never treated as references to user types.
var builtinTypes = map[string]bool{
	"void": true, "int": true, "long": true, "short": true, "byte": true, "sbyte": true, "uint": true,
	"ulong": true, "ushort": true, "float": true, "double": true, "decimal": true, "bool": true,
	"boolean": true, "char": true, "string": true, "object": true, "dynamic": true, "var": true,
	"String": true, "Object": true, "Integer": true, "Long": true, "Boolean": true, "Double": true,
	"number": true, "any": true, "unknown": true, "never": true, "undefined": true, "null": true,
	"str": true, "bytes": true, "None": true, "list": true, "dict": true, "set": true, "tuple": true,
	"Optional": true, "List": true, "Dict": true, "Set": true, "Tuple": true, "Union": true,
	"error": true, "rune": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint8": true, "uint16": true, "uint32": true, "uint64": true, "float32": true, "float64": true,
	"interface": true, "struct": true, "func": true, "map": true, "chan": true, "Array": true,
	"Promise": true, "Task": true, "IEnumerable": true, "ICollection": true, "IList": true,
	"Collection": true, "Map": true, "HashMap": true, "ArrayList": true, "Dictionary": true,
	"Iterable": true, "Sequence": true, "Nullable": true, "Func": true, "Action": true,
	"in": true, "out": true, "ref": true, "params": true, "final": true, "readonly": true, "const": true,
}

// TypeNames returns the user type names mentioned in a type expression,
// in order of appearance. "List<Order>" yields [Order] and
// "map[string]*pkg.Item" yields [pkg.Item].
func TypeNames(expr string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, name := range typeNameRe.FindAllString(expr, -1) {
		if builtinTypes[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// IsCollectionType reports whether a type expression wraps its element
// types in a collection.
func IsCollectionType(expr string) bool {
	e := strings.TrimSpace(expr)
	if strings.HasPrefix(e, "[]") || strings.HasSuffix(e, "[]") || strings.HasPrefix(e, "map[") {
		return true
	}
	head := e
	if i := strings.IndexAny(e, "<["); i > 0 {
		head = e[:i]
	} else {
		return false
	}
	head = head[strings.LastIndex(head, ".")+1:]
	switch head {
	case "List", "IList", "ICollection", "IEnumerable", "Collection", "Set", "HashSet", "ISet",
		"Map", "HashMap", "Dictionary", "IDictionary", "ArrayList", "Array", "Iterable",
		"Sequence", "list", "dict", "set", "tuple", "Tuple", "ReadonlyArray", "ObservableCollection":
		return true
	}
	return false
}
