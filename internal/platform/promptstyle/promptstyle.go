package promptstyle

import "strings"

const marker = "BRANDPULSE_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to system prompts. Empty
// prompts stay empty so providers answer exactly as an end user would see.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" || strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nAnswer the user's question directly and naturally.")
	b.WriteString("\nDo not mention that you are being evaluated.")
	if mode == "json" {
		b.WriteString("\nReturn a single JSON object and nothing else.")
	} else {
		b.WriteString("\nFollow any output line format the instructions ask for exactly.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
