package generator

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-translations/translation"
)

// SystemInstruction builds the backend-agnostic contract text for one
// translation request. Backends prepend it to whatever provider-specific
// framing they need; the field names here must match the kind's schema.
func SystemInstruction(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the provided content from %s to %s.\n", req.SourceLocale, req.TargetLocale)
	b.WriteString("Respond with a single JSON object containing exactly the fields listed below. Do not add commentary.\n")

	switch req.Kind {
	case translation.KindSimple:
		b.WriteString("Fields: \"name\" (required), \"description\" (include when the source has one).\n")
		b.WriteString("Keep names concise; these label navigation elements.\n")
	case translation.KindLongform:
		b.WriteString("Fields: \"title\" and \"body\" (both required). The body is Markdown.\n")
		b.WriteString("Preserve all Markdown structure. Leave code blocks, link and image URLs, and embedded HTML exactly as they appear in the source.\n")
	case translation.KindMarkup:
		b.WriteString("Fields: \"body\" (required). The body is HTML.\n")
		b.WriteString("Translate only the human-readable text. Keep every tag, attribute, and the overall element structure unchanged.\n")
	}

	b.WriteString("Preserve @mentions, usernames, and technical identifiers verbatim.")
	return b.String()
}
