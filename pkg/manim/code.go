// Package manim holds helpers shared by code generation and rendering that
// understand the shape of Manim scene source.
package manim

import (
	"regexp"
	"strings"
)

var (
	sceneClassRe = regexp.MustCompile(`(?m)^\s*class\s+(\w+)\s*\(\s*(?:\w+\.)?(ThreeDScene|MovingCameraScene|ZoomedScene|Scene)\s*\)\s*:`)
	fenceRe      = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\s*\\n(.*?)```")
)

// StripFences returns the code inside the first markdown fence of raw, or raw
// trimmed when it has no fence. Models often wrap code in triple backticks.
func StripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(cleaned); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		if i := strings.IndexByte(cleaned, '\n'); i >= 0 {
			cleaned = cleaned[i+1:]
		}
		cleaned = strings.TrimSuffix(strings.TrimSpace(cleaned), "```")
	}
	return strings.TrimSpace(cleaned)
}

// SceneClassName returns the first class deriving from a Manim scene type, or
// "" when the code has no renderable entry point.
func SceneClassName(code string) string {
	m := sceneClassRe.FindStringSubmatch(code)
	if m == nil {
		return ""
	}
	return m[1]
}
