// Package xsltengine is the host's built-in transformation provider.
//
// It implements a deliberately small XSLT 1.0 subset over etree: a single
// template matching "/", literal result elements, xsl:value-of with etree
// path expressions, xsl:text, stylesheet-level xsl:param, and the xml, text
// and html output methods. Production deployments point the loader at a
// full provider shared object instead; this engine keeps the host usable
// (and testable) without one.
//
// Stylesheets must use the conventional "xsl" prefix for XSLT elements.
package xsltengine

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"xslhost/pkg/engine"
)

// Engine implements engine.Engine. The compiled stylesheet for the current
// job is cached between Transform and AfterTransform; the host guarantees a
// single active command, so no locking is needed.
type Engine struct {
	job *stylesheet
}

// New is the factory the host registers the builtin engine under.
func New() (engine.Engine, error) {
	return &Engine{}, nil
}

// Command handles generic commands. Only transform is recognized.
func (e *Engine) Command(cmd *engine.Command) engine.EngineState {
	if cmd == nil {
		return engine.Error
	}
	if cmd.Name == engine.TransformCommand {
		return e.Transform(cmd)
	}
	return engine.Error
}

// Transform runs the task carried by cmd and writes the rendered output
// through the result-buffer protocol.
func (e *Engine) Transform(cmd *engine.Command) engine.EngineState {
	task := engine.TaskOf(cmd)
	if task == nil {
		return engine.Error
	}

	inputBytes, err := readDocument(task.Input)
	if err != nil {
		return engine.XMLParseError
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(inputBytes); err != nil {
		return engine.XMLParseError
	}
	if doc.Root() == nil {
		return engine.XMLParseError
	}

	sheetBytes, err := readDocument(task.Stylesheet)
	if err != nil {
		return engine.XSLCompileError
	}
	sheet, err := compile(sheetBytes)
	if err != nil {
		return engine.XSLCompileError
	}
	e.job = sheet

	out, err := sheet.apply(doc, task.Params)
	if err != nil {
		return engine.XSLTransformError
	}

	engine.AssignResultBuffer(len(out), cmd)
	engine.WriteResultBuffer(out, cmd)
	return engine.Ok
}

// AfterTransform drops the job-scoped compiled stylesheet.
func (e *Engine) AfterTransform(*engine.Command) engine.EngineState {
	e.job = nil
	return engine.Ok
}

// Shutdown clears provider state. Nothing survives it.
func (e *Engine) Shutdown() {
	e.job = nil
}

// OutputMethod peeks at a stylesheet's xsl:output declaration without fully
// compiling it. Returns "xml" when no method is declared or the stylesheet
// is unreadable; callers use this for content negotiation only.
func OutputMethod(sheetBytes []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(sheetBytes); err != nil {
		return "xml"
	}
	root := doc.Root()
	if root == nil {
		return "xml"
	}
	for _, el := range root.ChildElements() {
		if isXSL(el, "output") {
			if m := el.SelectAttrValue("method", ""); m != "" {
				return m
			}
		}
	}
	return "xml"
}

func readDocument(doc *engine.InputDocument) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is absent")
	}
	switch doc.Type {
	case engine.BufferInput:
		b := doc.Buffer()
		if b == nil {
			return nil, fmt.Errorf("buffer document has no text payload")
		}
		return b, nil
	case engine.FileInput:
		uri := doc.Buffer()
		if uri == nil {
			return nil, fmt.Errorf("file document has no uri")
		}
		return os.ReadFile(string(uri))
	case engine.StreamInput:
		return nil, fmt.Errorf("stream input is not supported by the builtin engine")
	default:
		return nil, fmt.Errorf("unknown input type %d", doc.Type)
	}
}

// stylesheet is a compiled template: output method, declared parameter
// defaults, and the root template body.
type stylesheet struct {
	method   string
	defaults map[string]string
	template *etree.Element
}

func compile(b []byte) (*stylesheet, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("stylesheet is not well-formed: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("stylesheet has no root element")
	}
	if !isXSL(root, "stylesheet") && !isXSL(root, "transform") {
		return nil, fmt.Errorf("root element is %s:%s, not xsl:stylesheet", root.Space, root.Tag)
	}

	sheet := &stylesheet{method: "xml", defaults: make(map[string]string)}
	for _, el := range root.ChildElements() {
		switch {
		case isXSL(el, "output"):
			if m := el.SelectAttrValue("method", ""); m != "" {
				sheet.method = m
			}
		case isXSL(el, "param"):
			name := el.SelectAttrValue("name", "")
			if name == "" {
				return nil, fmt.Errorf("xsl:param without a name")
			}
			sheet.defaults[name] = el.Text()
		case isXSL(el, "template"):
			if el.SelectAttrValue("match", "") == "/" {
				if sheet.template != nil {
					return nil, fmt.Errorf("multiple templates match \"/\"")
				}
				sheet.template = el
			}
		}
	}

	if sheet.template == nil {
		return nil, fmt.Errorf("no template matching \"/\"")
	}
	switch sheet.method {
	case "xml", "text", "html":
	default:
		return nil, fmt.Errorf("unsupported output method %q", sheet.method)
	}
	return sheet, nil
}

func (s *stylesheet) apply(doc *etree.Document, callerParams engine.Params) ([]byte, error) {
	params := make(map[string]string, len(s.defaults))
	for k, v := range s.defaults {
		params[k] = v
	}
	// Caller parameters are delivered in order; for a duplicated key the
	// last occurrence wins here. Undeclared parameters are ignored, as a
	// conforming processor would.
	for _, p := range callerParams {
		if _, declared := params[p.Key]; declared {
			params[p.Key] = p.Value
		}
	}

	out := etree.NewDocument()
	if err := s.applyBody(s.template, &out.Element, doc, params); err != nil {
		return nil, err
	}

	switch s.method {
	case "text":
		return []byte(textOf(&out.Element)), nil
	case "html":
		xmlBytes, err := out.WriteToBytes()
		if err != nil {
			return nil, err
		}
		return renderHTML(xmlBytes)
	default:
		return out.WriteToBytes()
	}
}

func (s *stylesheet) applyBody(tmpl *etree.Element, parent *etree.Element, doc *etree.Document, params map[string]string) error {
	for _, tok := range tmpl.Child {
		switch node := tok.(type) {
		case *etree.CharData:
			// Whitespace-only text in a template is indentation.
			if strings.TrimSpace(node.Data) == "" {
				continue
			}
			parent.CreateText(node.Data)
		case *etree.Element:
			if err := s.applyElement(node, parent, doc, params); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *stylesheet) applyElement(el *etree.Element, parent *etree.Element, doc *etree.Document, params map[string]string) error {
	if el.Space != xslPrefix {
		// Literal result element: copied with its attributes, children
		// instantiated recursively.
		result := parent.CreateElement(el.Tag)
		result.Space = el.Space
		for _, attr := range el.Attr {
			if attr.Space == "xmlns" || (attr.Space == "" && attr.Key == "xmlns") {
				continue
			}
			result.CreateAttr(attr.FullKey(), attr.Value)
		}
		return s.applyBody(el, result, doc, params)
	}

	switch el.Tag {
	case "value-of":
		sel := el.SelectAttrValue("select", "")
		if sel == "" {
			return fmt.Errorf("xsl:value-of without a select expression")
		}
		value, err := evaluate(sel, doc, params)
		if err != nil {
			return err
		}
		if value != "" {
			parent.CreateText(value)
		}
		return nil
	case "text":
		parent.CreateText(el.Text())
		return nil
	case "comment":
		parent.CreateComment(el.Text())
		return nil
	default:
		return fmt.Errorf("unsupported instruction xsl:%s", el.Tag)
	}
}

// evaluate resolves a select expression: "$name" reads a parameter, any
// other expression is an etree path into the source document. An empty
// node-set yields the empty string, as in XSLT.
func evaluate(sel string, doc *etree.Document, params map[string]string) (string, error) {
	if name, ok := strings.CutPrefix(sel, "$"); ok {
		value, declared := params[name]
		if !declared {
			return "", fmt.Errorf("reference to undeclared parameter $%s", name)
		}
		return value, nil
	}

	path, err := etree.CompilePath(sel)
	if err != nil {
		return "", fmt.Errorf("invalid select expression %q: %w", sel, err)
	}
	el := doc.FindElementPath(path)
	if el == nil {
		return "", nil
	}
	return el.Text(), nil
}

func textOf(el *etree.Element) string {
	var sb strings.Builder
	for _, tok := range el.Child {
		switch node := tok.(type) {
		case *etree.CharData:
			sb.WriteString(node.Data)
		case *etree.Element:
			sb.WriteString(textOf(node))
		}
	}
	return sb.String()
}

// renderHTML reserializes the produced tree through the HTML algorithm so
// void elements, raw-text elements and entities follow HTML rules rather
// than XML rules.
func renderHTML(xmlBytes []byte) ([]byte, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(xmlBytes), body)
	if err != nil {
		return nil, fmt.Errorf("html rendering failed: %w", err)
	}

	var buf bytes.Buffer
	for _, node := range nodes {
		if err := html.Render(&buf, node); err != nil {
			return nil, fmt.Errorf("html rendering failed: %w", err)
		}
	}
	return buf.Bytes(), nil
}

const xslPrefix = "xsl"

func isXSL(el *etree.Element, tag string) bool {
	return el.Space == xslPrefix && el.Tag == tag
}
