package extractor

import (
	"bytes"
	"strings"
)

// commentStyle describes how a language writes comments.
type commentStyle struct {
	line       []string
	blockStart string
	blockEnd   string
	// extra block delimiters, e.g. Razor's @* *@ next to HTML comments
	altStart string
	altEnd   string
}

var (
	cStyle      = commentStyle{line: []string{"//"}, blockStart: "/*", blockEnd: "*/"}
	hashStyle   = commentStyle{line: []string{"#"}, blockStart: `"""`, blockEnd: `"""`, altStart: "'''", altEnd: "'''"}
	sqlStyle    = commentStyle{line: []string{"--"}, blockStart: "/*", blockEnd: "*/"}
	markupStyle = commentStyle{blockStart: "<!--", blockEnd: "-->"}
	razorStyle  = commentStyle{blockStart: "<!--", blockEnd: "-->", altStart: "@*", altEnd: "*@"}
)

// classifyLines counts code, comment and blank lines. A line holding both
// code and a comment counts as code.
func classifyLines(src []byte, style commentStyle) LineCounts {
	var lc LineCounts
	if len(src) == 0 {
		return lc
	}
	lines := bytes.Split(src, []byte{'\n'})
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	inBlock := ""
	for _, raw := range lines {
		lc.Total++
		line := strings.TrimSpace(string(raw))
		if inBlock != "" {
			lc.Comment++
			if idx := strings.Index(line, inBlock); idx >= 0 {
				rest := strings.TrimSpace(line[idx+len(inBlock):])
				inBlock = ""
				if rest != "" && !isCommentOnly(rest, style) {
					lc.Comment--
					lc.Code++
				}
			}
			continue
		}
		if line == "" {
			lc.Blank++
			continue
		}
		if isLineComment(line, style) {
			lc.Comment++
			continue
		}
		if start, end := blockOpening(line, style); start != "" {
			lc.Comment++
			body := line[len(start):]
			if !strings.Contains(body, end) {
				inBlock = end
			}
			continue
		}
		lc.Code++
	}
	return lc
}

func isLineComment(line string, style commentStyle) bool {
	for _, prefix := range style.line {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func blockOpening(line string, style commentStyle) (string, string) {
	if style.blockStart != "" && strings.HasPrefix(line, style.blockStart) {
		return style.blockStart, style.blockEnd
	}
	if style.altStart != "" && strings.HasPrefix(line, style.altStart) {
		return style.altStart, style.altEnd
	}
	return "", ""
}

func isCommentOnly(rest string, style commentStyle) bool {
	if isLineComment(rest, style) {
		return true
	}
	start, _ := blockOpening(rest, style)
	return start != ""
}
