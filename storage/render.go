package storage

import "strings"

// Render fills the {name} and {title} placeholders of the welcome text.
// Anything else in braces is kept verbatim.
func Render(s *ChatSettings, name, title string) string {
	if s == nil {
		return ""
	}

	return strings.NewReplacer("{name}", name, "{title}", title).Replace(s.WelcomeText)
}
