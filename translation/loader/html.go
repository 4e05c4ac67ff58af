package loader

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLLoader 把 HTML 转换为 Markdown 文本, 保留标题、列表与代码块结构
type HTMLLoader struct{}

// NewHTMLLoader creates an HTMLLoader.
func NewHTMLLoader() *HTMLLoader {
	return &HTMLLoader{}
}

// Load parses the file and renders it as Markdown.
func (l *HTMLLoader) Load(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("html loader: %w", err)
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("html loader: parse %s: %w", path, err)
	}
	return HTMLToMarkdown(doc), nil
}

// SupportedTypes returns the extensions handled by HTMLLoader.
func (l *HTMLLoader) SupportedTypes() []string {
	return []string{".html", ".htm"}
}

var (
	blankLines = regexp.MustCompile(`\n{3,}`)
	spaceRun   = regexp.MustCompile(`[ \t\r\n\f]+`)
)

// HTMLToMarkdown 渲染已解析的 HTML 节点树
func HTMLToMarkdown(root *html.Node) string {
	var r mdRenderer
	r.walk(root)

	lines := strings.Split(r.b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	out := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}

type mdRenderer struct {
	b strings.Builder
}

func (r *mdRenderer) block() {
	r.b.WriteString("\n\n")
}

func (r *mdRenderer) children(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.walk(c)
	}
}

func (r *mdRenderer) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.b.WriteString(spaceRun.ReplaceAllString(n.Data, " "))
		return
	case html.ElementNode:
	default:
		r.children(n)
		return
	}

	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template:
		return
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		level := int(n.Data[1] - '0')
		r.block()
		r.b.WriteString(strings.Repeat("#", level) + " ")
		r.b.WriteString(strings.TrimSpace(textOf(n)))
		r.block()
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Header, atom.Footer, atom.Table, atom.Ul, atom.Ol:
		r.block()
		r.children(n)
		r.block()
	case atom.Tr:
		r.b.WriteString("\n")
		r.children(n)
	case atom.Td, atom.Th:
		r.b.WriteString(" | ")
		r.children(n)
	case atom.Li:
		r.b.WriteString("\n- ")
		r.children(n)
	case atom.Br:
		r.b.WriteString("\n")
	case atom.Hr:
		r.block()
		r.b.WriteString("---")
		r.block()
	case atom.Blockquote:
		r.block()
		for _, line := range strings.Split(strings.TrimSpace(textOf(n)), "\n") {
			r.b.WriteString("> " + strings.TrimSpace(line) + "\n")
		}
		r.block()
	case atom.Pre:
		r.block()
		r.b.WriteString("```\n")
		r.b.WriteString(strings.Trim(rawText(n), "\n"))
		r.b.WriteString("\n```")
		r.block()
	case atom.Code:
		r.b.WriteString("`" + rawText(n) + "`")
	case atom.Strong, atom.B:
		r.b.WriteString("**" + strings.TrimSpace(textOf(n)) + "**")
	case atom.Em, atom.I:
		r.b.WriteString("*" + strings.TrimSpace(textOf(n)) + "*")
	case atom.A:
		text := strings.TrimSpace(textOf(n))
		if href := attr(n, "href"); href != "" && text != "" {
			r.b.WriteString("[" + text + "](" + href + ")")
		} else {
			r.b.WriteString(text)
		}
	case atom.Img:
		if alt := attr(n, "alt"); alt != "" {
			r.b.WriteString("![" + alt + "](" + attr(n, "src") + ")")
		}
	default:
		r.children(n)
	}
}

// textOf 渲染子树并折叠空白
func textOf(n *html.Node) string {
	var sub mdRenderer
	sub.children(n)
	return sub.b.String()
}

// rawText 保留 pre/code 内原始空白
func rawText(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			visit(cc)
		}
	}
	visit(n)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
