// ABOUTME: Kind-specific prompt construction from a parent record
// ABOUTME: The settings system prompt, when set, is prefixed to every prompt

package orchestrator

import (
	"fmt"
	"strings"

	"github.com/2389/slotforge/internal/store"
)

// BuildPrompt renders the capability prompt for parent.
func BuildPrompt(parent store.Parent, settings store.Settings) string {
	var body string
	switch parent.Kind {
	case store.KindSong:
		body = songPrompt(parent)
	case store.KindImage:
		body = imagePrompt(parent)
	case store.KindVideo:
		body = videoPrompt(parent)
	default:
		body = parent.Prompt
	}

	if sp := strings.TrimSpace(settings.SystemPrompt); sp != "" {
		return sp + "\n\n" + body
	}
	return body
}

func songPrompt(p store.Parent) string {
	var sb strings.Builder
	sb.WriteString("Compose a song")
	if p.Style != "" {
		fmt.Fprintf(&sb, " in the style of %s", p.Style)
	}
	if p.Title != "" {
		fmt.Fprintf(&sb, " titled %q", p.Title)
	}
	sb.WriteString(".")
	if p.Prompt != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p.Prompt)
	}
	if p.Content != "" {
		sb.WriteString("\n\nLyrics:\n")
		sb.WriteString(p.Content)
	}
	return sb.String()
}

func imagePrompt(p store.Parent) string {
	prompt := p.Prompt
	if prompt == "" {
		prompt = p.Content
	}
	if p.Style != "" {
		prompt += ", " + p.Style + " style"
	}
	return prompt
}

func videoPrompt(p store.Parent) string {
	var sb strings.Builder
	sb.WriteString("Generate a short video clip")
	if p.Style != "" {
		fmt.Fprintf(&sb, " shot as %s", p.Style)
	}
	sb.WriteString(".")
	if p.Prompt != "" {
		sb.WriteString("\n\nShot: ")
		sb.WriteString(p.Prompt)
	}
	if p.Content != "" {
		sb.WriteString("\n\nScript:\n")
		sb.WriteString(p.Content)
	}
	return sb.String()
}

// slotTitle names the artifact a slot produces.
func slotTitle(parent store.Parent, index int) string {
	if parent.Title == "" {
		return ""
	}
	return fmt.Sprintf("%s (take %d)", parent.Title, index+1)
}
