package legal

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// strippedTags are removed before text extraction: chrome and code, not
// content.
var strippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"nav":      true,
	"footer":   true,
	"header":   true,
	"noscript": true,
	"aside":    true,
}

var newlineRunRe = regexp.MustCompile(`\n{3,}`)

// ExtractText parses HTML and returns the page title and readable text.
// Content containers are preferred in order main > article > [role=main];
// absent those, the stripped body is used. Text nodes are joined by
// newlines, each line's internal whitespace collapsed, and runs of three or
// more newlines compressed to two.
func ExtractText(rawHTML []byte) (title, text string) {
	doc, err := html.Parse(strings.NewReader(string(rawHTML)))
	if err != nil {
		// html.Parse is tolerant; an error here means truncated input.
		// Return nothing rather than half a page.
		return "", ""
	}

	title = findTitle(doc)
	removeTags(doc)

	root := doc
	for _, sel := range []string{"main", "article", "[role=main]"} {
		if n := findElement(doc, sel); n != nil {
			root = n
			break
		}
	}
	if root == doc {
		if body := findElement(doc, "body"); body != nil {
			root = body
		}
	}

	var lines []string
	collectText(root, &lines)
	text = strings.Join(lines, "\n")
	text = newlineRunRe.ReplaceAllString(text, "\n\n")
	return title, strings.TrimSpace(text)
}

// findTitle returns the trimmed contents of the first <title> element.
func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// removeTags prunes all stripped elements from the tree.
func removeTags(n *html.Node) {
	var doomed []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && strippedTags[c.Data] {
			doomed = append(doomed, c)
			continue
		}
		removeTags(c)
	}
	for _, d := range doomed {
		n.RemoveChild(d)
	}
}

// findElement returns the first element matching a tag name or a
// [key=value] attribute selector.
func findElement(n *html.Node, selector string) *html.Node {
	if n.Type == html.ElementNode && matchesSelector(n, selector) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, selector); found != nil {
			return found
		}
	}
	return nil
}

func matchesSelector(n *html.Node, selector string) bool {
	if strings.HasPrefix(selector, "[") && strings.HasSuffix(selector, "]") {
		kv := strings.SplitN(strings.Trim(selector, "[]"), "=", 2)
		if len(kv) != 2 {
			return false
		}
		for _, a := range n.Attr {
			if a.Key == kv[0] && a.Val == kv[1] {
				return true
			}
		}
		return false
	}
	return n.Data == selector
}

// collectText appends one line per non-empty text node, with internal
// whitespace collapsed to single spaces.
func collectText(n *html.Node, lines *[]string) {
	if n.Type == html.TextNode {
		if line := strings.Join(strings.Fields(n.Data), " "); line != "" {
			*lines = append(*lines, line)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, lines)
	}
}
