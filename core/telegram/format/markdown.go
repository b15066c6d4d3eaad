package format

import "strings"

var markdownEscaper = strings.NewReplacer(
	"_", `\_`,
	"*", `\*`,
	"[", `\[`,
	"`", "\\`",
)

// EscapeMarkdown escapes Telegram Markdown (V1) control characters in
// user-provided text so descriptions and names cannot break message rendering.
func EscapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}
