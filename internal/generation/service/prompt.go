package service

import (
	"fmt"
	"strings"
)

const defaultFramework = "PHPUnit"

func systemPrompt(framework string) string {
	framework = strings.TrimSpace(framework)
	if framework == "" {
		framework = defaultFramework
	}
	return fmt.Sprintf("You write %s unit tests for WordPress plugins. Reply with a single code block containing only test code.", framework)
}

func userPrompt(req generationInput) string {
	var b strings.Builder
	if name := strings.TrimSpace(req.PluginName); name != "" {
		fmt.Fprintf(&b, "Plugin: %s\n\n", name)
	}
	b.WriteString("Write tests for the following code:\n\n")
	b.WriteString(req.Code)
	return b.String()
}

type generationInput struct {
	PluginName string
	Code       string
}

// extractCode returns the body of the first fenced code block, or text
// unchanged when it has none.
func extractCode(text string) string {
	start := strings.Index(text, "```")
	if start < 0 {
		return strings.TrimSpace(text)
	}
	body := text[start+3:]
	if nl := strings.Index(body, "\n"); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}
