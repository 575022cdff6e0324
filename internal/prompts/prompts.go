package prompts

import (
	"fmt"
	"strings"
)

// DefaultTopic stands in for the tag list when a listing has no tags.
const DefaultTopic = "general meme"

// SystemPrompt frames every annotation request.
const SystemPrompt = `You annotate images on a cyberpunk meme marketplace. Answer with the requested text only: no introductions, no options, no quotes, no conversational filler.`

const captionTemplate = `Generate a single, concise, humorous caption (max 15 words) for this meme, based on the image and these keywords: %s. Make it edgy and a bit sarcastic if appropriate. Provide ONLY the caption text.`

const moodTemplate = `Describe the overall mood and aesthetic of this meme in 1-3 words (e.g. "dystopian", "sarcastic", "chaotic", "futuristic humor"), based on the image and these keywords: %s. Provide ONLY the mood.`

// Topic joins tags into the keyword list used by the prompts.
func Topic(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	if len(cleaned) == 0 {
		return DefaultTopic
	}
	return strings.Join(cleaned, ", ")
}

// Caption builds the caption prompt for a listing's tags.
func Caption(tags []string) string {
	return fmt.Sprintf(captionTemplate, Topic(tags))
}

// Mood builds the mood prompt for a listing's tags.
func Mood(tags []string) string {
	return fmt.Sprintf(moodTemplate, Topic(tags))
}

// CleanOutput trims whitespace and wrapping quotes from generated text.
func CleanOutput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	return strings.TrimSpace(s)
}
