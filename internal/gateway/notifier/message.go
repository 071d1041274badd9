package notifier

import (
	"strings"

	"perpbot/internal/pkg/text"
)

// Telegram 单条消息上限 4096，预留余量。
const maxStructuredMessageLen = 3800

// MessageSection 表示通知中的一个段落。
type MessageSection struct {
	Title string
	Lines []string
}

// StructuredMessage 描述统一格式的推送：标题、若干段落、页脚。
type StructuredMessage struct {
	Icon     string
	Title    string
	Sections []MessageSection
	Footer   string
}

// Render 生成纯文本（可含 HTML 标签），段落之间空一行，自动裁剪长度。
func (m StructuredMessage) Render() string {
	var b strings.Builder
	header := strings.TrimSpace(m.Icon + " " + m.Title)
	if header != "" {
		b.WriteString(header + "\n\n")
	}
	if block := renderSections(m.Sections); block != "" {
		b.WriteString(block)
	}
	if footer := strings.TrimSpace(m.Footer); footer != "" {
		b.WriteString("\n\n")
		b.WriteString(footer)
	}
	body := strings.TrimSpace(b.String())
	if len(body) > maxStructuredMessageLen {
		body = text.Truncate(body, maxStructuredMessageLen)
	}
	return body
}

func renderSections(secs []MessageSection) string {
	blocks := make([]string, 0, len(secs))
	for _, sec := range secs {
		lines := sanitizeLines(sec.Lines)
		title := strings.TrimSpace(sec.Title)
		if len(lines) == 0 && title == "" {
			continue
		}
		var b strings.Builder
		if title != "" {
			b.WriteString(title)
			if len(lines) > 0 {
				b.WriteString("\n")
			}
		}
		b.WriteString(strings.Join(lines, "\n"))
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

func sanitizeLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if text := strings.TrimSpace(line); text != "" {
			out = append(out, text)
		}
	}
	return out
}
