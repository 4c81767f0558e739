package query

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Decomposition is the downstream payload of a successful query: every code
// scheme the site reports for one character, plus the decomposition artwork
// the result page links per scheme.
type Decomposition struct {
	Char           string              `json:"char"`
	Wubi86         string              `json:"wubi86,omitempty"`
	Wubi98         string              `json:"wubi98,omitempty"`
	WubiNewCentury string              `json:"wubi_new_century,omitempty"`
	Numeric5       string              `json:"numeric5,omitempty"`
	Numeric6       string              `json:"numeric6,omitempty"`
	Numeric9       string              `json:"numeric9,omitempty"`
	Strokes        string              `json:"strokes,omitempty"`
	Components     map[string][]string `json:"components,omitempty"`
}

// Empty reports whether no code field was found at all.
func (d *Decomposition) Empty() bool {
	return d.Wubi86 == "" && d.Wubi98 == "" && d.WubiNewCentury == "" &&
		d.Numeric5 == "" && d.Numeric6 == "" && d.Numeric9 == "" && d.Strokes == ""
}

// ParseDecomposition extracts the code table from a decoded result page.
// The page is a legacy table layout: each code sits in the cell following
// its label cell. Component image links are resolved against baseURL.
// First occurrence of each field wins; later duplicates are ignored.
func ParseDecomposition(page, baseURL, char string) (*Decomposition, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	cells := collectCells(doc)
	dec := &Decomposition{Char: char, Components: make(map[string][]string)}

	for i := 0; i+1 < len(cells); i++ {
		label := cellText(cells[i])
		if label == "" {
			continue
		}
		value := cellText(cells[i+1])
		if value == "" {
			continue
		}
		imgs := cellImages(cells[i+1], base)

		switch {
		case strings.Contains(label, "数字王码") && strings.Contains(label, "5键"):
			setCode(&dec.Numeric5, value)
		case strings.Contains(label, "数字王码") && strings.Contains(label, "6键"):
			setCode(&dec.Numeric6, value)
			addComponents(dec, "numeric6", imgs)
		case strings.Contains(label, "数字王码") && strings.Contains(label, "9键"):
			setCode(&dec.Numeric9, value)
			addComponents(dec, "numeric9", imgs)
		case strings.Contains(label, "王码五笔字型") && strings.Contains(label, "86"):
			setCode(&dec.Wubi86, value)
			addComponents(dec, "wubi86", imgs)
		case strings.Contains(label, "王码五笔字型") && strings.Contains(label, "98"):
			setCode(&dec.Wubi98, value)
			addComponents(dec, "wubi98", imgs)
		case strings.Contains(label, "王码五笔字型") && strings.Contains(label, "新世纪"):
			setCode(&dec.WubiNewCentury, value)
			addComponents(dec, "wubi_new_century", imgs)
		case strings.Contains(label, "笔画序列"):
			setCode(&dec.Strokes, value)
		}
	}

	if len(dec.Components) == 0 {
		dec.Components = nil
	}
	return dec, nil
}

func setCode(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func addComponents(dec *Decomposition, key string, imgs []string) {
	if len(imgs) == 0 {
		return
	}
	if _, ok := dec.Components[key]; !ok {
		dec.Components[key] = imgs
	}
}

// collectCells returns all <td> nodes in document order.
func collectCells(doc *html.Node) []*html.Node {
	var cells []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			cells = append(cells, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return cells
}

// cellText concatenates the trimmed text content of a cell.
func cellText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(strings.TrimSpace(n.Data))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

// cellImages collects <img> sources inside a cell, resolved absolute. The
// legacy pages emit backslash path separators.
func cellImages(n *html.Node, base *url.URL) []string {
	var imgs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "img" {
			for _, attr := range n.Attr {
				if attr.Key != "src" {
					continue
				}
				src := strings.ReplaceAll(strings.TrimSpace(attr.Val), "\\", "/")
				if src == "" {
					continue
				}
				ref, err := url.Parse(src)
				if err != nil {
					continue
				}
				imgs = append(imgs, base.ResolveReference(ref).String())
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return imgs
}
