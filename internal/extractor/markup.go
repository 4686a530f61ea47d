package extractor

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"

	"legacylens/internal/apperrors"
	"legacylens/internal/model"
)

const xamlNamespace = "http://schemas.microsoft.com/winfx/2006/xaml"

// xamlEvents are attribute names wired to code-behind handlers.
var xamlEvents = set("Click", "Loaded", "Unloaded", "Initialized", "Closing", "Closed", "Checked", "Unchecked",
	"SelectionChanged", "TextChanged", "ValueChanged", "MouseDown", "MouseUp", "MouseDoubleClick",
	"KeyDown", "KeyUp", "PreviewKeyDown", "GotFocus", "LostFocus", "Executed", "CanExecute", "DoubleClick", "Tapped")

var (
	scriptSrc      = regexp.MustCompile(`(?i)<script[^>]+src\s*=\s*["']([^"']+)["']`)
	linkHref       = regexp.MustCompile(`(?i)<link[^>]+href\s*=\s*["']([^"']+)["']`)
	pageDirective  = regexp.MustCompile(`(?i)<%@\s*(?:Page|Control|Master)\b[^%]*?\bInherits\s*=\s*"([^"]+)"`)
	serverControl  = regexp.MustCompile(`(?i)<(\w+):(\w+)\b[^>]*?\bID\s*=\s*"(\w+)"[^>]*?runat\s*=\s*"server"`)
	razorModel     = regexp.MustCompile(`(?m)^\s*@model\s+([\w.<>,\s\[\]]+?)\s*$`)
	razorInject    = regexp.MustCompile(`(?m)^\s*@inject\s+([\w.<>,\[\]]+)\s+(\w+)\s*$`)
	razorUsing     = regexp.MustCompile(`(?m)^\s*@using\s+([\w.]+)\s*;?\s*$`)
	razorInherits  = regexp.MustCompile(`(?m)^\s*@inherits\s+([\w.<>]+)\s*$`)
	razorNamespace = regexp.MustCompile(`(?m)^\s*@namespace\s+([\w.]+)\s*$`)
)

// MarkupExtractor handles XAML, XML, HTML and Razor views. Markup only
// produces symbols where it declares or binds to code: XAML x:Class and
// x:Name, ASP.NET Inherits and server controls, Razor @model and @inject.
type MarkupExtractor struct {
	language string
}

func NewMarkupExtractor(language string) *MarkupExtractor {
	return &MarkupExtractor{language: language}
}

func (e *MarkupExtractor) Language() string { return e.language }

func (e *MarkupExtractor) Parse(in SourceInput) (ParsedFile, error) {
	f := &textFile{in: in, text: string(in.Content)}
	if e.language != model.LangXAML && e.language != model.LangXML {
		return f, nil
	}
	dec := xml.NewDecoder(bytes.NewReader(in.Content))
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		if err != nil {
			line := 0
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				line = se.Line
			}
			return nil, apperrors.NewParseError(in.Path, e.language, line, err)
		}
	}
}

func (e *MarkupExtractor) ExtractSymbols(p ParsedFile) (*FileResult, error) {
	f, ok := p.(*textFile)
	if !ok {
		return nil, errUnexpectedTree
	}
	b := newFileBuilder(f.in)
	var ns string
	var err error
	switch e.language {
	case model.LangXAML:
		ns, err = extractXAML(b, f)
	case model.LangRazor:
		ns = extractRazor(b, f)
	case model.LangHTML:
		ns = extractHTML(b, f)
	}
	if err != nil {
		return nil, err
	}
	return b.result(ns), nil
}

func (e *MarkupExtractor) ComputeMetrics(p ParsedFile, r *FileResult) {
	style := markupStyle
	if e.language == model.LangRazor {
		style = razorStyle
	}
	finishMetrics(p.Source(), style, r)
}

// extractXAML declares the partial class named by x:Class. Named elements
// become fields and event attributes reference handler methods.
func extractXAML(b *fileBuilder, f *textFile) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(f.text))
	var class *model.CodeSymbol
	var fields []model.CodeSymbol
	var refs []model.SymbolReference
	lineOfOffset := func() int { return lineAt(f.text, int(dec.InputOffset())) }
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		line := lineOfOffset()
		if class == nil {
			for _, a := range start.Attr {
				if a.Name.Local == "Class" && a.Name.Space == xamlNamespace {
					ns, name := splitReceiver(a.Value)
					class = &model.CodeSymbol{
						Name:      name,
						FullName:  a.Value,
						Kind:      model.KindClass,
						Access:    model.AccessPublic,
						Namespace: ns,
						Location:  model.Location{StartLine: line, EndLine: strings.Count(f.text, "\n") + 1},
						BaseTypes: []string{start.Name.Local},
						Modifiers: []string{"partial"},
					}
				}
			}
		}
		if start.Name.Space != "" && !strings.HasPrefix(start.Name.Space, "http") {
			refs = append(refs, model.SymbolReference{Kind: model.RefInstantiation, Target: start.Name.Local, Line: line})
		}
		for _, a := range start.Attr {
			switch {
			case a.Name.Local == "Name" && (a.Name.Space == xamlNamespace || a.Name.Space == ""):
				fields = append(fields, model.CodeSymbol{
					Name:     a.Value,
					Kind:     model.KindField,
					Access:   model.AccessInternal,
					Location: model.Location{StartLine: line, EndLine: line},
					Type:     start.Name.Local,
				})
			case xamlEvents[a.Name.Local] && a.Name.Space == "" && !strings.HasPrefix(a.Value, "{"):
				refs = append(refs, model.SymbolReference{Kind: model.RefEvent, Target: a.Value, Receiver: "this", Line: line})
			}
		}
	}
	if class == nil {
		return "", nil
	}
	b.ensureNamespace(class.Namespace, class.Location)
	for i := range refs {
		if refs[i].Receiver == "this" {
			refs[i].ReceiverType = class.Name
		}
	}
	class.References = refs
	b.add(*class)
	for _, fld := range fields {
		fld.FullName = qualify(class.FullName, fld.Name)
		fld.Namespace = class.Namespace
		fld.Parent = class.FullName
		b.add(fld)
	}
	return class.Namespace, nil
}

// extractHTML records linked scripts and stylesheets, and for Web Forms
// pages the code-behind class with its server controls.
func extractHTML(b *fileBuilder, f *textFile) string {
	for _, re := range []*regexp.Regexp{scriptSrc, linkHref} {
		for _, m := range re.FindAllStringSubmatchIndex(f.text, -1) {
			b.addImport(f.text[m[2]:m[3]], "", lineAt(f.text, m[0]))
		}
	}
	m := pageDirective.FindStringSubmatchIndex(f.text)
	if m == nil {
		return ""
	}
	full := f.text[m[2]:m[3]]
	ns, name := splitReceiver(full)
	line := lineAt(f.text, m[0])
	b.ensureNamespace(ns, model.Location{StartLine: line, EndLine: line})
	b.add(model.CodeSymbol{
		Name:      name,
		FullName:  full,
		Kind:      model.KindClass,
		Access:    model.AccessPublic,
		Namespace: ns,
		Location:  model.Location{StartLine: line, EndLine: strings.Count(f.text, "\n") + 1},
		Modifiers: []string{"partial"},
	})
	for _, c := range serverControl.FindAllStringSubmatchIndex(f.text, -1) {
		id := f.text[c[6]:c[7]]
		cl := lineAt(f.text, c[0])
		b.add(model.CodeSymbol{
			Name:      id,
			FullName:  qualify(full, id),
			Kind:      model.KindField,
			Access:    model.AccessProtected,
			Namespace: ns,
			Location:  model.Location{StartLine: cl, EndLine: cl},
			Parent:    full,
			Type:      f.text[c[4]:c[5]],
		})
	}
	return ns
}

// extractRazor models a Razor view as a class named after the file.
func extractRazor(b *fileBuilder, f *textFile) string {
	rel := strings.TrimSuffix(f.in.Path, path.Ext(f.in.Path))
	ns := strings.ReplaceAll(path.Dir(rel), "/", ".")
	if ns == "." {
		ns = ""
	}
	if m := razorNamespace.FindStringSubmatch(f.text); m != nil {
		ns = m[1]
	}
	name := path.Base(rel)
	full := qualify(ns, name)
	b.ensureNamespace(ns, model.Location{StartLine: 1, EndLine: 1})

	for _, m := range razorUsing.FindAllStringSubmatchIndex(f.text, -1) {
		b.addImport(f.text[m[2]:m[3]], "", lineAt(f.text, m[0]))
	}
	view := model.CodeSymbol{
		Name:      name,
		FullName:  full,
		Kind:      model.KindClass,
		Access:    model.AccessPublic,
		Namespace: ns,
		Location:  model.Location{StartLine: 1, EndLine: strings.Count(f.text, "\n") + 1},
		Modifiers: []string{"partial"},
	}
	view.Metrics.LinesOfCode = view.Location.EndLine
	if m := razorInherits.FindStringSubmatch(f.text); m != nil {
		view.BaseTypes = []string{stripGenericArgs(m[1])}
	}
	if m := razorModel.FindStringSubmatchIndex(f.text); m != nil {
		view.Type = canonicalize(f.text[m[2]:m[3]])
		for _, t := range model.TypeNames(view.Type) {
			view.References = append(view.References, model.SymbolReference{
				Kind: model.RefTypeUsage, Target: t, Line: lineAt(f.text, m[0]),
			})
		}
	}
	b.add(view)
	for _, m := range razorInject.FindAllStringSubmatchIndex(f.text, -1) {
		line := lineAt(f.text, m[0])
		prop := f.text[m[4]:m[5]]
		b.add(model.CodeSymbol{
			Name:      prop,
			FullName:  qualify(full, prop),
			Kind:      model.KindProperty,
			Access:    model.AccessPublic,
			Namespace: ns,
			Location:  model.Location{StartLine: line, EndLine: line},
			Parent:    full,
			Type:      f.text[m[2]:m[3]],
			Modifiers: []string{"injected"},
		})
	}
	return ns
}
