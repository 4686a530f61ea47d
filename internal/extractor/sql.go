package extractor

import (
	"regexp"
	"sort"
	"strings"

	"legacylens/internal/model"
)

var (
	sqlLineComment  = regexp.MustCompile(`--[^\n]*`)
	sqlBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	sqlCreate       = regexp.MustCompile(`(?i)\bCREATE\s+(?:OR\s+(?:REPLACE|ALTER)\s+)?(TABLE|VIEW|PROCEDURE|PROC|FUNCTION|TRIGGER)\s+(?:IF\s+NOT\s+EXISTS\s+)?((?:[\[\]"\x60\w]+\.)?[\[\]"\x60\w]+)`)
	sqlTableRef     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE|REFERENCES)\s+((?:[\[\]"\x60\w]+\.)?[\[\]"\x60\w]+)`)
	sqlExec         = regexp.MustCompile(`(?i)\bEXEC(?:UTE)?\s+((?:[\[\]"\x60\w]+\.)?[\[\]"\x60\w]+)`)
	sqlTriggerOn    = regexp.MustCompile(`(?i)^\s*ON\s+((?:[\[\]"\x60\w]+\.)?[\[\]"\x60\w]+)`)
	sqlParam        = regexp.MustCompile(`(@\w+)\s+([A-Za-z]\w*(?:\s*\([^)]*\))?)`)
	sqlBranch       = regexp.MustCompile(`(?i)\b(IF|WHILE|WHEN|LOOP)\b`)
	sqlLogical      = regexp.MustCompile(`(?i)\b(AND|OR)\b`)
	sqlBeginEnd     = regexp.MustCompile(`(?i)\b(BEGIN|END)\b`)
	sqlBodyStart    = regexp.MustCompile(`(?i)\b(AS|BEGIN|RETURNS)\b`)
	sqlColumnDef    = regexp.MustCompile(`^\s*([\[\]"\x60\w]+)\s+(\w+(?:\s*\([^)]*\))?)`)
)

var sqlKinds = map[string]model.SymbolKind{
	"TABLE":     model.KindTable,
	"VIEW":      model.KindView,
	"PROCEDURE": model.KindProcedure,
	"PROC":      model.KindProcedure,
	"FUNCTION":  model.KindFunction,
	"TRIGGER":   model.KindTrigger,
}

var sqlNonColumns = set("PRIMARY", "FOREIGN", "CONSTRAINT", "UNIQUE", "CHECK", "INDEX", "KEY")

// SQLExtractor recognizes DDL objects in SQL scripts. It works on text
// patterns rather than a grammar, so dialect differences degrade to missed
// objects instead of parse failures.
type SQLExtractor struct{}

func NewSQLExtractor() *SQLExtractor {
	return &SQLExtractor{}
}

func (e *SQLExtractor) Language() string { return model.LangSQL }

type textFile struct {
	in SourceInput
	// text with comments blanked out, same length and line structure
	text string
}

func (f *textFile) Source() SourceInput { return f.in }
func (f *textFile) Close()              {}

// blank replaces every non-newline byte of the match with a space so
// offsets and line numbers stay valid.
func blank(re *regexp.Regexp, s string) string {
	return re.ReplaceAllStringFunc(s, func(m string) string {
		b := []byte(m)
		for i := range b {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
		return string(b)
	})
}

func (e *SQLExtractor) Parse(in SourceInput) (ParsedFile, error) {
	text := blank(sqlBlockComment, string(in.Content))
	text = blank(sqlLineComment, text)
	return &textFile{in: in, text: text}, nil
}

func unquoteSQL(name string) string {
	return strings.NewReplacer("[", "", "]", "", `"`, "", "`", "").Replace(name)
}

func lineAt(text string, offset int) int {
	return strings.Count(text[:offset], "\n") + 1
}

func (e *SQLExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, ok := p.(*textFile)
	if !ok {
		return nil, errUnexpectedTree
	}
	b := newFileBuilder(f.in)
	matches := sqlCreate.FindAllStringSubmatchIndex(f.text, -1)
	var firstSchema string
	for i, m := range matches {
		end := len(f.text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		kind := sqlKinds[strings.ToUpper(f.text[m[2]:m[3]])]
		qualified := unquoteSQL(f.text[m[4]:m[5]])
		schema, name := splitReceiver(qualified)
		if schema != "" {
			if firstSchema == "" {
				firstSchema = schema
			}
			b.ensureNamespace(schema, model.Location{StartLine: lineAt(f.text, m[0]), EndLine: lineAt(f.text, m[0])})
		}
		body := f.text[m[5]:end]
		loc := model.Location{
			StartLine: lineAt(f.text, m[0]),
			EndLine:   lineAt(f.text, m[0]+len(strings.TrimRight(f.text[m[0]:end], " \t\r\n"))),
		}
		s := model.CodeSymbol{
			Name:      name,
			FullName:  qualified,
			Kind:      kind,
			Access:    model.AccessPublic,
			Namespace: schema,
			Location:  loc,
		}
		s.Metrics.LinesOfCode = loc.EndLine - loc.StartLine + 1

		var columns []model.CodeSymbol
		switch kind {
		case model.KindTable:
			columns = sqlColumns(body, qualified, schema, loc.StartLine+strings.Count(f.text[m[0]:m[5]], "\n"))
			s.References = sqlReferences(body, loc.StartLine, qualified)
		case model.KindTrigger:
			if on := sqlTriggerOn.FindStringSubmatch(body); on != nil {
				s.References = append(s.References, model.SymbolReference{Kind: model.RefTypeUsage, Target: unquoteSQL(on[1]), Line: loc.StartLine})
			}
			s.References = append(s.References, sqlReferences(body, loc.StartLine, qualified)...)
			sqlMeasure(&s, body)
		case model.KindProcedure, model.KindFunction:
			header := body
			if i := sqlBodyStart.FindStringIndex(body); i != nil {
				header = body[:i[0]]
			}
			s.Parameters = []model.Parameter{}
			for _, pm := range sqlParam.FindAllStringSubmatch(header, -1) {
				s.Parameters = append(s.Parameters, model.Parameter{Name: pm[1], Type: canonicalize(pm[2])})
			}
			s.Metrics.ParameterCount = len(s.Parameters)
			s.References = sqlReferences(body, loc.StartLine, qualified)
			sqlMeasure(&s, body)
		case model.KindView:
			s.References = sqlReferences(body, loc.StartLine, qualified)
		}
		b.add(s)
		for _, c := range columns {
			b.add(c)
		}
	}
	return b.result(firstSchema), nil
}

func (e *SQLExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	finishMetrics(p.Source(), sqlStyle, r)
}

// sqlColumns reads column definitions from a CREATE TABLE body.
func sqlColumns(body, table, schema string, startLine int) []model.CodeSymbol {
	open := strings.Index(body, "(")
	if open < 0 {
		return nil
	}
	depth := 0
	var cols []model.CodeSymbol
	start := open + 1
	emit := func(def string, offset int) {
		m := sqlColumnDef.FindStringSubmatch(def)
		if m == nil || sqlNonColumns[strings.ToUpper(m[1])] {
			return
		}
		name, typ := unquoteSQL(m[1]), m[2]
		line := startLine + strings.Count(body[:offset], "\n")
		for offset < len(body) && (body[offset] == '\n' || body[offset] == ' ' || body[offset] == '\t' || body[offset] == '\r') {
			if body[offset] == '\n' {
				line++
			}
			offset++
		}
		cols = append(cols, model.CodeSymbol{
			Name:      name,
			FullName:  qualify(table, name),
			Kind:      model.KindField,
			Access:    model.AccessPublic,
			Namespace: schema,
			Location:  model.Location{StartLine: line, EndLine: line},
			Parent:    table,
			Type:      canonicalize(strings.ToUpper(typ)),
		})
	}
	for i := open; i < len(body); i++ {
		switch body[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				emit(body[start:i], start)
				return cols
			}
		case ',':
			if depth == 1 {
				emit(body[start:i], start)
				start = i + 1
			}
		}
	}
	return cols
}

// sqlReferences lists the tables and procedures a body touches, once each.
func sqlReferences(body string, startLine int, self string) []model.SymbolReference {
	seen := make(map[string]bool)
	var refs []model.SymbolReference
	add := func(kind model.ReferenceKind, target string, offset int) {
		target = unquoteSQL(target)
		if target == self || seen[string(kind)+target] || isSQLKeyword(target) {
			return
		}
		seen[string(kind)+target] = true
		refs = append(refs, model.SymbolReference{Kind: kind, Target: target, Line: startLine + strings.Count(body[:offset], "\n")})
	}
	for _, m := range sqlTableRef.FindAllStringSubmatchIndex(body, -1) {
		add(model.RefTypeUsage, body[m[2]:m[3]], m[0])
	}
	for _, m := range sqlExec.FindAllStringSubmatchIndex(body, -1) {
		add(model.RefCall, body[m[2]:m[3]], m[0])
	}
	sort.SliceStable(refs, func(i, j int) bool { return refs[i].Line < refs[j].Line })
	return refs
}

func isSQLKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "SELECT", "WHERE", "SET", "VALUES", "AS", "ON", "INSERTED", "DELETED", "DUAL":
		return true
	}
	return false
}

func sqlMeasure(s *model.CodeSymbol, body string) {
	branches := len(sqlBranch.FindAllString(body, -1))
	logical := len(sqlLogical.FindAllString(body, -1))
	depth, maxDepth := 0, 0
	for _, m := range sqlBeginEnd.FindAllString(body, -1) {
		if strings.EqualFold(m, "BEGIN") {
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		} else if depth > 0 {
			depth--
		}
	}
	if maxDepth > 0 {
		maxDepth--
	}
	s.Metrics.CyclomaticComplexity = 1 + branches + logical
	s.Metrics.CognitiveComplexity = branches + logical
	s.Metrics.MaxNesting = maxDepth
}
