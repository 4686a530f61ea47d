package resolver

import (
	"context"
	"regexp"
	"strings"

	"legacylens/internal/model"
)

const (
	OpReference = "REFERENCE"
	OpExec      = "EXEC"
	OpSelect    = "SELECT"
	OpInsert    = "INSERT"
	OpUpdate    = "UPDATE"
	OpDelete    = "DELETE"
	OpMap       = "MAP"
	OpConnect   = "CONNECT"
)

const sqlObject = `((?:[\[\]"\x60\w]+\.)?[\[\]"\x60\w]+)`

var (
	stringLiteral = regexp.MustCompile(`"(?:[^"\\\n]|\\.)*"|'(?:[^'\\\n]|\\.)*'|\x60[^\x60]*\x60|@"(?:[^"]|"")*"`)

	embeddedSQL = []struct {
		op string
		re *regexp.Regexp
	}{
		{OpSelect, regexp.MustCompile(`(?i)\bSELECT\b[\s\S]+?\bFROM\s+` + sqlObject)},
		{OpInsert, regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+` + sqlObject)},
		{OpUpdate, regexp.MustCompile(`(?i)\bUPDATE\s+` + sqlObject + `\s+SET\b`)},
		{OpDelete, regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+` + sqlObject)},
		{OpExec, regexp.MustCompile(`(?i)^\s*EXEC(?:UTE)?\s+` + sqlObject)},
	}
	sqlJoin = regexp.MustCompile(`(?i)\bJOIN\s+` + sqlObject)

	ormMarkers = []struct {
		technology string
		re         *regexp.Regexp
	}{
		{"entity_framework", regexp.MustCompile(`\bDbSet<\s*(\w+)\s*>`)},
		{"entity_framework", regexp.MustCompile(`\[Table\(\s*"([^"]+)"`)},
		{"jpa", regexp.MustCompile(`@Table\(\s*(?:name\s*=\s*)?"([^"]+)"`)},
		{"sqlalchemy", regexp.MustCompile(`\b__tablename__\s*=\s*['"]([^'"]+)['"]`)},
		{"django", regexp.MustCompile(`\bdb_table\s*=\s*['"]([^'"]+)['"]`)},
		{"typeorm", regexp.MustCompile(`@Entity\(\s*(?:\{\s*name\s*:\s*)?['"]([^'"]+)['"]`)},
		{"sequelize", regexp.MustCompile(`\.define\(\s*['"]([^'"]+)['"]`)},
		{"gorm", regexp.MustCompile(`\bTableName\(\)\s*string\s*\{\s*return\s+"([^"]+)"`)},
	}

	connectionStrings = []struct {
		technology string
		re         *regexp.Regexp
	}{
		{"sqlserver", regexp.MustCompile(`(?i)\b(?:Initial Catalog|Database)\s*=\s*([\w.-]+)`)},
		{"jdbc", regexp.MustCompile(`\bjdbc:\w+:(?://)?[^/"'\s;]*[/;:](?:databaseName=)?([\w.-]+)`)},
		{"postgres", regexp.MustCompile(`\bpostgres(?:ql)?://[^/"'\s]+/([\w.-]+)`)},
		{"mysql", regexp.MustCompile(`\bmysql://[^/"'\s]+/([\w.-]+)`)},
		{"mongodb", regexp.MustCompile(`\bmongodb(?:\+srv)?://[^/"'\s]+/([\w.-]+)`)},
		{"redis", regexp.MustCompile(`\bredis://[^/"'\s]+/?(\w*)`)},
		{"sqlite", regexp.MustCompile(`\bsqlite3?:(?://)?/?([\w./-]+\.(?:db|sqlite3?))`)},
	}
)

// databaseStage links code to database objects: SQL bodies, SQL text
// embedded in string literals, ORM mappings and connection strings. Embedded
// statements naming an in-repository table also add a database-kind static
// dependency.
type databaseStage struct{}

func (databaseStage) Name() string { return "database" }

func (databaseStage) Run(ctx context.Context, st *state) (ResolveStats, error) {
	var stats ResolveStats
	objects := st.databaseObjects()

	for _, s := range st.code.Symbols {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		if s.Language != model.LangSQL || s.Kind == model.KindNamespace {
			continue
		}
		for _, ref := range s.References {
			op := OpReference
			if ref.Kind == model.RefCall {
				op = OpExec
			}
			stats.Attempted++
			if _, ok := objects[strings.ToLower(ref.Target)]; ok {
				stats.Resolved++
			} else {
				stats.Skipped++
			}
			st.database = append(st.database, model.DatabaseDependency{
				From:       s.FullName,
				Object:     ref.Target,
				Operation:  op,
				Technology: "sql",
				Location:   refLocation(&s, ref),
			})
		}
	}

	for _, f := range st.code.Files {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		if f.Language == model.LangSQL || f.ParseFailed || !isCodeLanguage(f.Language) {
			continue
		}
		src := st.source(f)
		if src == nil {
			continue
		}
		text := maskComments(string(src), f.Language)

		for _, lit := range stringLiteral.FindAllStringIndex(text, -1) {
			body := text[lit[0]:lit[1]]
			line := lineAt(text, lit[0])
			for _, obj := range embeddedObjects(body) {
				stats.Attempted++
				from := st.enclosing(f.Path, line)
				loc := model.Location{File: f.Path, StartLine: line, EndLine: line}
				st.database = append(st.database, model.DatabaseDependency{
					From:       from,
					Object:     obj.name,
					Operation:  obj.op,
					Technology: "embedded_sql",
					Location:   loc,
				})
				target, ok := objects[strings.ToLower(obj.name)]
				if !ok {
					stats.Skipped++
					continue
				}
				stats.Resolved++
				if _, sym := st.ix.Symbol(from); sym {
					st.addStatic(st.ix.Unit(from), target, model.DepDatabase, model.ScopeType, loc)
				}
			}
		}

		for _, marker := range ormMarkers {
			for _, m := range marker.re.FindAllStringSubmatchIndex(text, -1) {
				stats.Attempted++
				stats.Resolved++
				line := lineAt(text, m[0])
				st.database = append(st.database, model.DatabaseDependency{
					From:       st.enclosing(f.Path, line),
					Object:     text[m[2]:m[3]],
					Operation:  OpMap,
					Technology: marker.technology,
					Location:   model.Location{File: f.Path, StartLine: line, EndLine: line},
				})
			}
		}
	}

	// connection strings are searched in markup and config files too
	for _, f := range st.code.Files {
		if ctx.Err() != nil {
			st.cancelled = true
			return stats, nil
		}
		if f.Language == model.LangSQL {
			continue
		}
		src := st.source(f)
		if src == nil {
			continue
		}
		text := string(src)
		for _, cs := range connectionStrings {
			for _, m := range cs.re.FindAllStringSubmatchIndex(text, -1) {
				name := text[m[2]:m[3]]
				if name == "" {
					name = "0"
				}
				stats.Attempted++
				stats.Resolved++
				line := lineAt(text, m[0])
				st.database = append(st.database, model.DatabaseDependency{
					From:       st.enclosing(f.Path, line),
					Object:     name,
					Operation:  OpConnect,
					Technology: cs.technology,
					Location:   model.Location{File: f.Path, StartLine: line, EndLine: line},
				})
			}
		}
	}
	return stats, nil
}

type sqlObjectRef struct {
	op   string
	name string
}

// embeddedObjects lists the database objects a string literal's SQL names.
func embeddedObjects(literal string) []sqlObjectRef {
	var out []sqlObjectRef
	seen := make(map[sqlObjectRef]bool)
	add := func(op, name string) {
		r := sqlObjectRef{op: op, name: unquoteObject(name)}
		if r.name == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	body := strings.Trim(literal, "@\"'`")
	for _, p := range embeddedSQL {
		for _, m := range p.re.FindAllStringSubmatch(body, -1) {
			add(p.op, m[1])
		}
	}
	if len(out) > 0 {
		for _, m := range sqlJoin.FindAllStringSubmatch(body, -1) {
			add(OpSelect, m[1])
		}
	}
	return out
}

func unquoteObject(name string) string {
	return strings.NewReplacer("[", "", "]", "", `"`, "", "`", "").Replace(name)
}

// databaseObjects indexes in-repository tables, views and procedures by
// lower-case full and simple name.
func (st *state) databaseObjects() map[string]string {
	objects := make(map[string]string)
	for _, s := range st.code.Symbols {
		switch s.Kind {
		case model.KindTable, model.KindView, model.KindProcedure:
		default:
			continue
		}
		if s.Language != model.LangSQL && s.Kind != model.KindTable {
			continue
		}
		objects[strings.ToLower(s.FullName)] = s.FullName
		if _, ok := objects[strings.ToLower(s.Name)]; !ok {
			objects[strings.ToLower(s.Name)] = s.FullName
		}
	}
	return objects
}

func isCodeLanguage(lang string) bool {
	switch lang {
	case model.LangCSharp, model.LangJava, model.LangPython, model.LangJavaScript, model.LangTypeScript, model.LangGo:
		return true
	}
	return false
}
