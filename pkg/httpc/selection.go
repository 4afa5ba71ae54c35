package httpc

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Selection HTML 节点集合，每次查询返回新的 Selection
type Selection struct {
	nodes []*html.Node
	err   error
}

func ParseHTML(body []byte) *Selection {
	root, err := htmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return &Selection{err: err}
	}
	return &Selection{nodes: []*html.Node{root}}
}

// XPath 使用XPath表达式查询
func (s *Selection) XPath(expr string) *Selection {
	if s.err != nil {
		return s
	}

	var results []*html.Node
	for _, node := range s.nodes {
		found, err := htmlquery.QueryAll(node, expr)
		if err != nil {
			return &Selection{err: fmt.Errorf("invalid XPath expression: %w", err)}
		}
		results = append(results, found...)
	}
	return &Selection{nodes: results}
}

// CSS 使用CSS选择器查询
func (s *Selection) CSS(selector string) *Selection {
	if s.err != nil {
		return s
	}

	sel, err := cascadia.Compile(selector)
	if err != nil {
		return &Selection{err: fmt.Errorf("invalid CSS selector: %w", err)}
	}

	var results []*html.Node
	for _, node := range s.nodes {
		results = append(results, cascadia.QueryAll(node, sel)...)
	}
	return &Selection{nodes: results}
}

func (s *Selection) First() *Selection {
	if s.err != nil || len(s.nodes) == 0 {
		return s
	}
	return &Selection{nodes: s.nodes[:1]}
}

// Attr 第一个匹配元素的属性
func (s *Selection) Attr(name string) string {
	if s.err != nil || len(s.nodes) == 0 {
		return ""
	}
	return htmlquery.SelectAttr(s.nodes[0], name)
}

// Text 多个元素用换行连接
func (s *Selection) Text() (string, error) {
	if s.err != nil {
		return "", s.err
	}

	texts := make([]string, 0, len(s.nodes))
	for _, node := range s.nodes {
		texts = append(texts, htmlquery.InnerText(node))
	}
	return strings.TrimSpace(strings.Join(texts, "\n")), nil
}

func (s *Selection) Length() int {
	if s.err != nil {
		return 0
	}
	return len(s.nodes)
}

func (s *Selection) Err() error {
	return s.err
}
