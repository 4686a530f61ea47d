package resolver

import (
	"regexp"
	"strings"

	"legacylens/internal/model"
)

var (
	branchHeader  = regexp.MustCompile(`(?:^|[^\w.])(?:if|else|switch|case|catch|while|for|foreach|do|select|default)\b`)
	ternary       = regexp.MustCompile(`\s\?\s|\?\?|&&|\|\|`)
	pythonBranch  = regexp.MustCompile(`^(?:if|elif|else|except|while|for|match|case|finally)\b`)
	pythonInline  = regexp.MustCompile(`\bif\b.*\belse\b|\band\b|\bor\b`)
	pythonScope   = regexp.MustCompile(`^(?:async\s+)?(?:def|class)\b`)
	sqlBlockToken = regexp.MustCompile(`(?i)\b(BEGIN|END|IF|ELSE|WHILE|CASE)\b`)
)

// maskComments blanks comments so patterns inside them never match. Offsets
// and line breaks are preserved.
func maskComments(text, language string) string {
	var line, blockStart, blockEnd string
	switch language {
	case model.LangPython:
		line = "#"
	case model.LangSQL:
		line, blockStart, blockEnd = "--", "/*", "*/"
	default:
		line, blockStart, blockEnd = "//", "/*", "*/"
	}
	b := []byte(text)
	var quote byte
	for i := 0; i < len(b); i++ {
		c := b[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote || (c == '\n' && quote != '`'):
				quote = 0
			}
			continue
		}
		switch {
		case c == '"' || c == '\'' || (c == '`' && language != model.LangSQL):
			quote = c
		case strings.HasPrefix(text[i:], line):
			for ; i < len(b) && b[i] != '\n'; i++ {
				b[i] = ' '
			}
		case blockStart != "" && strings.HasPrefix(text[i:], blockStart):
			end := strings.Index(text[i+len(blockStart):], blockEnd)
			stop := len(b)
			if end >= 0 {
				stop = i + len(blockStart) + end + len(blockEnd)
			}
			for ; i < stop; i++ {
				if b[i] != '\n' {
					b[i] = ' '
				}
			}
			i--
		}
	}
	return string(b)
}

// isConditional reports whether offset sits inside a branch: a block opened
// by a branch keyword, a branch statement without braces, or a conditional
// expression on the same statement.
func isConditional(text string, offset int, language string) bool {
	switch language {
	case model.LangPython:
		return indentConditional(text, offset)
	case model.LangSQL:
		return sqlConditional(text, offset)
	}
	return braceConditional(text, offset)
}

func braceConditional(text string, offset int) bool {
	var (
		blocks     []bool
		stmtStart  int
		parenDepth int
		quote      byte
	)
	for i := 0; i < offset; i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote || c == '\n' {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(':
			parenDepth++
		case ')':
			if parenDepth > 0 {
				parenDepth--
			}
		case '{':
			blocks = append(blocks, branchHeader.MatchString(text[stmtStart:i]))
			stmtStart, parenDepth = i+1, 0
		case '}':
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
			stmtStart = i + 1
		case ';':
			if parenDepth == 0 {
				stmtStart = i + 1
			}
		}
	}
	for _, branch := range blocks {
		if branch {
			return true
		}
	}
	stmt := text[stmtStart:offset]
	return branchHeader.MatchString(stmt) || ternary.MatchString(stmt)
}

func indentConditional(text string, offset int) bool {
	lines := strings.Split(text[:offset], "\n")
	current := lines[len(lines)-1]
	if rest := text[offset:]; true {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			rest = rest[:i]
		}
		current += rest
	}
	trimmed := strings.TrimSpace(current)
	if pythonBranch.MatchString(trimmed) || pythonInline.MatchString(trimmed) {
		return true
	}
	indent := indentOf(current)
	for i := len(lines) - 2; i >= 0 && indent > 0; i-- {
		l := lines[i]
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "#") {
			continue
		}
		d := indentOf(l)
		if d >= indent {
			continue
		}
		if pythonScope.MatchString(t) {
			return false
		}
		if pythonBranch.MatchString(t) {
			return true
		}
		indent = d
	}
	return false
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

func sqlConditional(text string, offset int) bool {
	var (
		blocks []bool
		last   string
	)
	for _, m := range sqlBlockToken.FindAllStringSubmatchIndex(text[:offset], -1) {
		word := strings.ToUpper(text[m[2]:m[3]])
		switch word {
		case "BEGIN":
			blocks = append(blocks, last == "IF" || last == "ELSE" || last == "WHILE")
		case "END":
			if len(blocks) > 0 {
				blocks = blocks[:len(blocks)-1]
			}
		}
		last = word
	}
	for _, branch := range blocks {
		if branch {
			return true
		}
	}
	// IF ... EXEC (@sql) without BEGIN/END on the same line
	start := strings.LastIndexByte(text[:offset], '\n') + 1
	prefix := strings.ToUpper(strings.TrimSpace(text[start:offset]))
	return strings.HasPrefix(prefix, "IF ") || strings.HasPrefix(prefix, "ELSE")
}
