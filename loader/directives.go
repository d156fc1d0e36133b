package loader

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"

	"github.com/liuxd6825/k6x/errext"
	"github.com/liuxd6825/k6x/errext/exitcodes"
	"github.com/liuxd6825/k6x/ext"
)

// DirectiveSyntaxError is returned for a "use k6" directive that can't be parsed.
type DirectiveSyntaxError struct {
	SourceID  string
	Line      int
	Directive string
	Reason    string
}

var (
	_ errext.HasExitCode    = &DirectiveSyntaxError{}
	_ errext.HasHint        = &DirectiveSyntaxError{}
	_ errext.HasAbortReason = &DirectiveSyntaxError{}
)

func (e *DirectiveSyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: invalid directive %q: %s", e.SourceID, e.Line, e.Directive, e.Reason)
}

// Hint implements errext.HasHint.
func (e *DirectiveSyntaxError) Hint() string {
	return `directives look like "use k6 >= 0.52" or "use k6 with k6/x/<name> >= 1.0.0"`
}

// ExitCode implements errext.HasExitCode.
func (e *DirectiveSyntaxError) ExitCode() exitcodes.ExitCode {
	return exitcodes.ScriptDependencyError
}

// AbortReason implements errext.HasAbortReason.
func (e *DirectiveSyntaxError) AbortReason() errext.AbortReason {
	return errext.AbortedByDependency
}

//nolint:gochecknoglobals
var (
	reImport = regexp.MustCompile(
		`^import\s*(?:(?:[\w$]+\s*,?\s*)?(?:\*\s*as\s+[\w$]+|\{[^}]*\})?\s*from\s*)?(?:"([^"\n]*)"|'([^'\n]*)')`)
	reExportFrom = regexp.MustCompile(
		`^export\s*(?:\*(?:\s*as\s+[\w$]+)?|\{[^}]*\})\s*from\s*(?:"([^"\n]*)"|'([^'\n]*)')`)

	// export forms after the leading block, rewritten so the parser accepts
	// the source as a script
	reExportDefault = regexp.MustCompile(`(?m)^([ \t]*)export[ \t]+default\b`)
	reExportDecl    = regexp.MustCompile(
		`(?m)^([ \t]*)export([ \t]+(?:async[ \t]+)?(?:function|class|const|let|var)\b)`)
	reExportList = regexp.MustCompile(
		`(?m)^[ \t]*export[ \t]*(?:\*(?:[ \t]*as[ \t]+[\w$]+)?|\{[^}]*\})` +
			`(?:[ \t]*from[ \t]*["']([^"'\n]*)["'])?[ \t]*;?`)
)

// ParseManifest extracts the requirements declared by a script. Directives are
// string literal statements in the leading block of the script, before any
// executable code:
//
//	"use k6 >= 0.52";
//	"use k6 with k6/x/sql >= 1.0.0";
//
// Extension modules the script imports or requires become requirements that
// accept any version, unless a directive constrains them.
func ParseManifest(sourceID string, src []byte) (*ext.Manifest, error) {
	script, specifiers := stripModuleSyntax(src)

	prg, err := parser.ParseFile(nil, sourceID, script, 0, parser.WithDisableSourceMaps)
	if err != nil {
		return nil, errext.WithAbortReasonIfNone(
			errext.WithExitCodeIfNone(fmt.Errorf("couldn't compile %s: %w", sourceID, err), exitcodes.ScriptException),
			errext.AbortedByScriptError)
	}

	m := ext.NewManifest(sourceID)
	for _, stmt := range prg.Body {
		lit := directiveLiteral(stmt)
		if lit == nil {
			break
		}
		line := prg.File.Position(int(lit.Idx) - prg.File.Base()).Line
		if err := applyDirective(m, sourceID, line, lit.Value.String()); err != nil {
			return nil, err
		}
	}

	for _, spec := range specifiers {
		addImport(m, spec)
	}
	for _, spec := range requireCalls(prg) {
		addImport(m, spec)
	}
	return m, nil
}

// directiveLiteral returns the string literal stmt consists of, if any.
func directiveLiteral(stmt ast.Statement) *ast.StringLiteral {
	es, ok := stmt.(*ast.ExpressionStatement)
	if !ok {
		return nil
	}
	lit, _ := es.Expression.(*ast.StringLiteral)
	return lit
}

// stripModuleSyntax blanks out the import and re-export statements of the
// leading block and rewrites later export declarations, so that an ES module
// parses as a script with unchanged line numbers. It returns the specifiers
// of the removed statements.
func stripModuleSyntax(src []byte) ([]byte, []string) {
	script := bytes.Clone(src)
	var specifiers []string

	p := &prologue{src: src}
	if bytes.HasPrefix(src, []byte("#!")) {
		p.skipLine()
		blank(script, 0, p.pos)
	}

scan:
	for {
		p.skipTrivia()
		if p.eof() {
			break
		}

		start := p.pos
		re := reImport
		switch c := p.src[p.pos]; {
		case c == '"' || c == '\'':
			if !p.stringStatement() {
				break scan
			}
			continue
		case p.keyword("import"):
		case p.keyword("export"):
			re = reExportFrom
		default:
			break scan
		}

		spec, ok := p.moduleStatement(re)
		if !ok {
			break scan
		}
		specifiers = append(specifiers, spec)
		blank(script, start, p.pos)
	}

	script = reExportList.ReplaceAllFunc(script, func(stmt []byte) []byte {
		if match := reExportList.FindSubmatch(stmt); len(match[1]) > 0 {
			specifiers = append(specifiers, string(match[1]))
		}
		out := bytes.Clone(stmt)
		blank(out, 0, len(out))
		return out
	})
	script = reExportDefault.ReplaceAll(script, []byte("${1}exports.default ="))
	script = reExportDecl.ReplaceAll(script, []byte("${1}      ${2}"))

	return script, specifiers
}

// blank replaces b[from:to] with spaces, keeping line breaks.
func blank(b []byte, from, to int) {
	for i := from; i < to; i++ {
		if b[i] != '\n' && b[i] != '\r' {
			b[i] = ' '
		}
	}
}

//nolint:gochecknoglobals
var fileType = reflect.TypeOf((*file.File)(nil))

// requireCalls returns the string arguments of every require() call in prg,
// in source order.
func requireCalls(prg *ast.Program) []string {
	var specs []string
	seen := make(map[file.Idx]bool)
	walkNodes(reflect.ValueOf(prg.Body), func(n ast.Node) {
		call, ok := n.(*ast.CallExpression)
		if !ok || len(call.ArgumentList) == 0 {
			return
		}
		callee, ok := call.Callee.(*ast.Identifier)
		if !ok || callee.Name != "require" {
			return
		}
		arg, ok := call.ArgumentList[0].(*ast.StringLiteral)
		if !ok || seen[arg.Idx] {
			return
		}
		seen[arg.Idx] = true
		specs = append(specs, arg.Value.String())
	})
	return specs
}

// walkNodes calls visit for every AST node reachable from v, parents first.
func walkNodes(v reflect.Value, visit func(ast.Node)) {
	switch v.Kind() { //nolint:exhaustive
	case reflect.Interface:
		if !v.IsNil() {
			walkNodes(v.Elem(), visit)
		}
	case reflect.Ptr:
		if v.IsNil() || v.Type() == fileType {
			return
		}
		if n, ok := v.Interface().(ast.Node); ok {
			visit(n)
		}
		walkNodes(v.Elem(), visit)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				walkNodes(v.Field(i), visit)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walkNodes(v.Index(i), visit)
		}
	}
}

func addImport(m *ext.Manifest, specifier string) {
	if strings.HasPrefix(specifier, ext.ModulePrefix) {
		m.AddImport(specifier)
	}
}

func applyDirective(m *ext.Manifest, sourceID string, line int, text string) error {
	fields := strings.Fields(text)
	if len(fields) < 2 || fields[0] != "use" || fields[1] != ext.EngineName {
		return nil // "use strict" and other prologue strings
	}

	syntaxErr := func(reason string) error {
		return &DirectiveSyntaxError{SourceID: sourceID, Line: line, Directive: text, Reason: reason}
	}

	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "use"))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ext.EngineName))

	if len(fields) > 2 && fields[2] == "with" {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "with"))
		if rest == "" {
			return syntaxErr("missing extension name")
		}
		name := rest
		expr := ""
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			name, expr = rest[:i], strings.TrimSpace(rest[i:])
		}
		if ext.NormalizeName(name) == "" || !validName(name) {
			return syntaxErr(fmt.Sprintf("invalid extension name %q", name))
		}
		c, err := parseExpr(expr, true)
		if err != nil {
			return syntaxErr(err.Error())
		}
		return m.Require(name, c)
	}

	c, err := parseExpr(rest, false)
	if err != nil {
		return syntaxErr(err.Error())
	}
	return m.RequireEngine(c)
}

func validName(name string) bool {
	name = ext.NormalizeName(name)
	for _, r := range name {
		if !(r == '-' || r == '_' || r == '.' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func parseExpr(expr string, optional bool) (ext.Constraint, error) {
	if expr == "" {
		if optional {
			return ext.Constraint{}, nil
		}
		return ext.Constraint{}, errors.New("missing version constraint")
	}
	if expr != ext.AnyVersion && !strings.ContainsAny(expr[:1], "=<>!^~") {
		return ext.Constraint{}, fmt.Errorf("missing operator before %q", expr)
	}
	c, err := ext.ParseConstraint(expr)
	if err != nil {
		return ext.Constraint{}, fmt.Errorf("unparsable version constraint %q: %w", expr, err)
	}
	return c, nil
}

// prologue scans the leading block of a script.
type prologue struct {
	src []byte
	pos int
}

func (p *prologue) eof() bool {
	return p.pos >= len(p.src)
}

func (p *prologue) skipLine() {
	for !p.eof() && p.src[p.pos] != '\n' {
		p.pos++
	}
}

// skipTrivia skips whitespace and comments and reports whether a line break
// was crossed.
func (p *prologue) skipTrivia() (newline bool) {
	for !p.eof() {
		switch c := p.src[p.pos]; {
		case c == '\n':
			newline = true
			p.pos++
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			p.pos++
		case bytes.HasPrefix(p.src[p.pos:], []byte("//")):
			p.skipLine()
		case bytes.HasPrefix(p.src[p.pos:], []byte("/*")):
			end := bytes.Index(p.src[p.pos+2:], []byte("*/"))
			if end < 0 {
				p.pos = len(p.src)
				return newline
			}
			comment := p.src[p.pos : p.pos+2+end+2]
			newline = newline || bytes.IndexByte(comment, '\n') >= 0
			p.pos += len(comment)
		default:
			return newline
		}
	}
	return newline
}

// keyword reports whether the keyword starts at the current position.
func (p *prologue) keyword(kw string) bool {
	if !bytes.HasPrefix(p.src[p.pos:], []byte(kw)) {
		return false
	}
	next := p.pos + len(kw)
	if next >= len(p.src) {
		return true
	}
	c := p.src[next]
	return !(c == '_' || c == '$' || c == '(' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'))
}

// endStatement consumes an optional semicolon and reports whether the
// statement ended there.
func (p *prologue) endStatement() bool {
	newline := p.skipTrivia()
	switch {
	case p.eof():
		return true
	case p.src[p.pos] == ';':
		p.pos++
		return true
	default:
		return newline
	}
}

// stringStatement skips a statement consisting of a single string literal.
func (p *prologue) stringStatement() bool {
	quote := p.src[p.pos]
	for i := p.pos + 1; i < len(p.src); i++ {
		switch p.src[i] {
		case quote:
			p.pos = i + 1
			return p.endStatement()
		case '\n':
			return false
		case '\\':
			i++
		}
	}
	return false
}

// moduleStatement reads an import or re-export statement matched by re and
// returns its module specifier.
func (p *prologue) moduleStatement(re *regexp.Regexp) (string, bool) {
	match := re.FindSubmatchIndex(p.src[p.pos:])
	if match == nil {
		return "", false
	}
	spec := ""
	switch {
	case match[2] >= 0:
		spec = string(p.src[p.pos+match[2] : p.pos+match[3]])
	case match[4] >= 0:
		spec = string(p.src[p.pos+match[4] : p.pos+match[5]])
	}
	p.pos += match[1]
	if !p.endStatement() {
		return "", false
	}
	return spec, true
}
