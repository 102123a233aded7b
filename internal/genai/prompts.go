package genai

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are the editor of a technology news channel about AI, automation and software engineering.
You receive a social media post or thread written by someone else and publish your own short take on it.
Keep every fact, number, product name and link from the source. Do not invent details.
Do not mention the original author, the platform, or that the text was rewritten.
Reply with the finished post only: no preamble, no quotes around it, no hashtags unless the source had them.`

var languageInstructions = map[Language]string{
	English: `Write the post in clear, natural English.
Open with the key news in one sentence, then add at most three short paragraphs or a compact list.
Stay under 1200 characters.`,
	Russian: `Напиши пост на русском языке, живым и понятным стилем.
Начни с главной новости одним предложением, затем не более трёх коротких абзацев или компактный список.
Технические термины и названия продуктов оставляй на английском.
Уложись в 1200 символов.`,
}

// SystemPrompt returns the instruction shared by both languages
func SystemPrompt() string {
	return systemPrompt
}

// UserPrompt wraps the source text with the instruction for the target language
func UserPrompt(text string, lang Language) (string, error) {
	instruction, ok := languageInstructions[lang]
	if !ok {
		return "", fmt.Errorf("unsupported language %q", lang)
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("\n\nSource post:\n<<<\n")
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n>>>")
	return b.String(), nil
}
