package inference

import "strings"

// RenderPrompt translates a message sequence into the fixed
// [INST]/[/INST]/<<SYS>> role-delimited template (spec §4.1) so the same
// conversation can be sent through either the chat or native endpoint
// without separate templating logic per caller.
func RenderPrompt(messages []Message) string {
	var b strings.Builder

	var system string
	rest := messages
	if len(messages) > 0 && messages[0].Role == "system" {
		system = messages[0].Content
		rest = messages[1:]
	}

	b.WriteString("[INST] ")
	if system != "" {
		b.WriteString("<<SYS>>\n")
		b.WriteString(system)
		b.WriteString("\n<</SYS>>\n\n")
	}

	for i, m := range rest {
		switch m.Role {
		case "user":
			if i > 0 {
				b.WriteString("[INST] ")
			}
			b.WriteString(m.Content)
			b.WriteString(" [/INST]")
		case "assistant":
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString(" </s>")
		default:
			b.WriteString(m.Content)
		}
	}

	return b.String()
}
