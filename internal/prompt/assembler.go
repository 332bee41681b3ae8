package prompt

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xela07ax/spaceai-agent-pipeline/internal/domain"
)

// Resolver отдаёт значение входа по id, затем по типу.
type Resolver interface {
	Lookup(id, typ string) (any, bool)
}

const (
	attrElementID = "data-element-id"
	attrInputType = "data-input-type"
	attrLabel     = "data-label"
)

var mustache = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

var blockAtoms = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Ul: true, atom.Ol: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Blockquote: true, atom.Pre: true, atom.Tr: true,
}

// Assemble превращает HTML-шаблон в текст промпта.
// Текст переносится как есть, плейсхолдеры заменяются значениями, неразрешённые пропускаются.
func Assemble(template string, in Resolver) string {
	root, err := html.Parse(strings.NewReader(template))
	if err != nil {
		// html.Parse почти не падает; шаблон считаем простым текстом
		return strings.TrimSpace(replaceInline(template, in))
	}
	var b strings.Builder
	walk(root, in, &b)
	return normalize(b.String())
}

func walk(n *html.Node, in Resolver, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(replaceInline(n.Data, in))
		return
	case html.ElementNode:
		if id, typ, _, ok := placeholderAttrs(n); ok {
			if v, found := in.Lookup(id, typ); found {
				b.WriteString(domain.Stringify(v))
			}
			return
		}
		if n.DataAtom == atom.Br {
			b.WriteString("\n")
			return
		}
	}

	block := n.Type == html.ElementNode && blockAtoms[n.DataAtom]
	if block {
		separate(b)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, in, b)
	}
	if block {
		separate(b)
	}
}

// separate ставит перевод строки между блоками, не дублируя его.
func separate(b *strings.Builder) {
	s := b.String()
	if s == "" || strings.HasSuffix(s, "\n") {
		return
	}
	b.WriteString("\n")
}

func replaceInline(text string, in Resolver) string {
	return mustache.ReplaceAllStringFunc(text, func(tok string) string {
		name := mustache.FindStringSubmatch(tok)[1]
		if v, ok := in.Lookup(name, name); ok {
			return domain.Stringify(v)
		}
		return ""
	})
}

func normalize(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func placeholderAttrs(n *html.Node) (id, typ, label string, ok bool) {
	for _, a := range n.Attr {
		switch a.Key {
		case attrElementID:
			id = a.Val
			ok = true
		case attrInputType, "data-type":
			if typ == "" || a.Key == attrInputType {
				typ = a.Val
			}
		case attrLabel:
			label = a.Val
		}
	}
	return id, typ, label, ok
}

// Placeholders перечисляет плейсхолдеры шаблона (элементы и {{name}}) без повторов.
func Placeholders(template string) []domain.InputElement {
	out := make([]domain.InputElement, 0)
	seen := make(map[string]bool)
	add := func(el domain.InputElement) {
		if el.ID == "" || seen[el.ID] {
			return
		}
		seen[el.ID] = true
		out = append(out, el)
	}

	root, err := html.Parse(strings.NewReader(template))
	if err != nil {
		return out
	}
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			for _, m := range mustache.FindAllStringSubmatch(n.Data, -1) {
				add(domain.InputElement{ID: m[1], Type: "text", Label: m[1]})
			}
			return
		}
		if n.Type == html.ElementNode {
			if id, typ, label, ok := placeholderAttrs(n); ok {
				if typ == "" {
					typ = "text"
				}
				if label == "" {
					label = id
				}
				add(domain.InputElement{ID: id, Type: typ, Label: label})
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return out
}
