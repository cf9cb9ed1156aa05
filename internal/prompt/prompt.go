package prompt

import (
	"fmt"
	"strings"
)

const (
	// DefaultStyle is sent when the user leaves the prompt empty.
	DefaultStyle = "Professional product photography style"

	// AutoPromptFallback replaces an empty auto-prompt reply.
	AutoPromptFallback = "Professional product shot with cinematic lighting and elegant background."

	AutoPromptInstruction = "Describe this object in detail and then write a professional product photography prompt for it. " +
		"The prompt should specify a luxurious or modern background, cinematic lighting, and sharp focus. " +
		"Return ONLY the final prompt text without any introductory sentences."
)

// Effective returns the prompt actually sent to the image model.
func Effective(userPrompt string) string {
	if userPrompt == "" {
		return DefaultStyle
	}
	return userPrompt
}

// Transform wraps the effective prompt in the re-staging instruction.
func Transform(effective string) string {
	return fmt.Sprintf(
		"Re-imagine this product in a professional commercial setting: %s. "+
			"Maintain the product's core identity but enhance the lighting, shadows, and background to look high-end.",
		strings.TrimSpace(effective),
	)
}

// Clean normalizes a model reply into a single prompt line.
func Clean(reply string) string {
	reply = strings.TrimSpace(reply)
	reply = strings.Trim(reply, "\"'`")
	return strings.TrimSpace(reply)
}
