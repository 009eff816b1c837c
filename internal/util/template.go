package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// RenderTemplate replaces template variables using Go's text/template package.
// Prompt text is never HTML-escaped.
// This lives in internal to avoid committing to public API stability prematurely.
func RenderTemplate(text string, data map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": func(s string) string {
			if len(s) == 0 {
				return s
			}
			return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
		},
		"join": func(sep string, items []string) string {
			return strings.Join(items, sep)
		},
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// RenderOrRaw renders text and falls back to the raw text when rendering fails.
func RenderOrRaw(text string, data map[string]any) string {
	out, err := RenderTemplate(text, data)
	if err != nil {
		return text
	}
	return out
}
