package webfetch

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	multiNewlinePattern = regexp.MustCompile(`\n{3,}`)
	multiSpacePattern   = regexp.MustCompile(`[ \t]+`)
)

// HTMLToText reduces an HTML document to readable, line-oriented text and
// returns the document title. Mail and phone links keep their targets so
// contact details survive.
func HTMLToText(doc string) (title, text string, err error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", "", err
	}
	var sb strings.Builder
	extractText(root, &sb, &title, 0)
	return strings.TrimSpace(title), cleanText(sb.String()), nil
}

func extractText(n *html.Node, sb *strings.Builder, title *string, depth int) {
	if depth > 64 {
		return
	}

	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			sb.WriteString(t)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "iframe", "svg", "nav", "form":
			return
		case "title":
			if n.FirstChild != nil && *title == "" {
				*title = n.FirstChild.Data
			}
			return
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n## ")
		case "p", "div", "section", "article", "tr", "table":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		case "li", "dt", "dd":
			sb.WriteString("\n- ")
		case "td", "th":
			sb.WriteString(" | ")
		case "img":
			if alt := getAttr(n, "alt"); alt != "" {
				sb.WriteString("[Image: " + alt + "] ")
			}
			return
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		extractText(c, sb, title, depth+1)
	}

	if n.Type == html.ElementNode {
		switch n.Data {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			sb.WriteString("\n\n")
		case "a":
			href := getAttr(n, "href")
			if strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") {
				sb.WriteString("(" + href + ") ")
			}
		}
	}
}

func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// cleanText collapses runs of blank lines and spaces and trims every line.
func cleanText(s string) string {
	s = multiSpacePattern.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	s = strings.Join(lines, "\n")
	s = multiNewlinePattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
