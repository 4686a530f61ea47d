package extractor

import (
	"regexp"

	"legacylens/internal/model"
)

var (
	pascalCase = regexp.MustCompile(`^_?[A-Z][A-Za-z0-9]*$`)
	camelCase  = regexp.MustCompile(`^[_$]?[a-z][A-Za-z0-9]*$`)
	snakeCase  = regexp.MustCompile(`^_{0,2}[a-z][a-z0-9_]*_{0,2}$`)
	mixedCaps  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	sqlName    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// namingRules gives the expected pattern for type and callable names.
func namingRules(language string) (types, callables *regexp.Regexp) {
	switch language {
	case model.LangCSharp:
		return pascalCase, pascalCase
	case model.LangJava, model.LangJavaScript, model.LangTypeScript:
		return pascalCase, camelCase
	case model.LangPython:
		return pascalCase, snakeCase
	case model.LangGo:
		return mixedCaps, mixedCaps
	case model.LangSQL:
		return sqlName, sqlName
	}
	return nil, nil
}

// checkNaming counts type and callable names and how many follow the
// language's convention. Constructors are named after their type and skipped.
func checkNaming(language string, symbols []model.CodeSymbol) (checked, conforming int) {
	types, callables := namingRules(language)
	if types == nil {
		return 0, 0
	}
	for _, s := range symbols {
		var rule *regexp.Regexp
		switch {
		case s.Kind.IsType():
			rule = types
		case s.Kind.IsCallable() && s.Kind != model.KindConstructor:
			rule = callables
		default:
			continue
		}
		checked++
		if rule.MatchString(s.Name) {
			conforming++
		}
	}
	return checked, conforming
}
