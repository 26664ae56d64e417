package telegram

import "strings"

const markdownReserved = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdown escapes MarkdownV2 reserved characters in user-supplied
// content so it cannot break message formatting.
func EscapeMarkdown(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownReserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// EscapeHTML escapes the characters reserved in Telegram HTML mode.
func EscapeHTML(text string) string {
	return htmlEscaper.Replace(text)
}
