package generator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/goliatone/go-translations/translation"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// verifyMarkup checks that translation did not disturb the structural parts
// of a markup-bearing body. Simple kinds carry no markup and always pass.
func verifyMarkup(kind translation.EntityKind, source, output map[string]any) error {
	switch kind {
	case translation.KindLongform:
		return verifyMarkdown(fieldString(source, "body"), fieldString(output, "body"))
	case translation.KindMarkup:
		return verifyHTML(fieldString(source, "body"), fieldString(output, "body"))
	}
	return nil
}

// verifyHTML compares the tag skeletons of the two documents: the ordered
// sequence of opened, closed, and void elements must match exactly.
func verifyHTML(source, output string) error {
	src := htmlSkeleton(source)
	out := htmlSkeleton(output)
	if !slices.Equal(src, out) {
		return fmt.Errorf("%w: tag skeleton changed from %v to %v", ErrMarkupAltered, src, out)
	}
	return nil
}

func htmlSkeleton(body string) []string {
	z := html.NewTokenizer(strings.NewReader(body))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken:
			name, _ := z.TagName()
			tags = append(tags, "<"+string(name)+">")
		case html.EndTagToken:
			name, _ := z.TagName()
			tags = append(tags, "</"+string(name)+">")
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, "<"+string(name)+"/>")
		}
	}
}

// verifyMarkdown requires the non-translatable anchors of a markdown body to
// survive byte-identical: fenced code content, link and image destinations,
// and raw HTML fragments. Prose around them is free to change.
func verifyMarkdown(source, output string) error {
	src, err := markdownAnchors(source)
	if err != nil {
		return err
	}
	out, err := markdownAnchors(output)
	if err != nil {
		return err
	}
	if !slices.Equal(src, out) {
		return fmt.Errorf("%w: markdown anchors changed from %v to %v", ErrMarkupAltered, src, out)
	}
	return nil
}

func markdownAnchors(body string) ([]string, error) {
	src := []byte(body)
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	var anchors []string
	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock:
			anchors = append(anchors, "code:"+string(node.Language(src))+":"+linesValue(node, src))
		case *ast.CodeBlock:
			anchors = append(anchors, "code::"+linesValue(node, src))
		case *ast.Link:
			anchors = append(anchors, "link:"+string(node.Destination))
		case *ast.Image:
			anchors = append(anchors, "image:"+string(node.Destination))
		case *ast.HTMLBlock:
			anchors = append(anchors, "html:"+linesValue(node, src))
		case *ast.RawHTML:
			var b strings.Builder
			for i := 0; i < node.Segments.Len(); i++ {
				segment := node.Segments.At(i)
				b.Write(segment.Value(src))
			}
			anchors = append(anchors, "html:"+b.String())
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return anchors, nil
}

func linesValue(node ast.Node, src []byte) string {
	var b strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		segment := lines.At(i)
		b.Write(segment.Value(src))
	}
	return b.String()
}

func fieldString(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if value, ok := fields[key].(string); ok {
		return value
	}
	return ""
}
