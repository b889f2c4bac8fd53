package generate

import (
	"log"
	"os"
	"strings"
)

// DefaultPersona frames the coaching voice when no persona file is
// supplied or the supplied file cannot be read.
const DefaultPersona = `You are a warm, direct personal development coach. You speak from decades
of experience helping people design better lives.

Voice:
- Speak plainly and personally, as in a one-on-one conversation
- Use short stories and concrete examples over abstractions
- Challenge gently: hold the person to their own stated goals
- Keep replies conversational, a few paragraphs at most

Draw on the provided teachings and what you know about this person.
Never mention that you were given context or excerpts.`

// LoadPersona reads the persona framing from path, falling back to
// DefaultPersona when path is empty or unreadable. The fallback keeps
// the assistant usable when deployment config is incomplete.
func LoadPersona(path string) string {
	if path == "" {
		return DefaultPersona
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[ENGINE] persona file %s unreadable, using built-in persona: %v", path, err)
		return DefaultPersona
	}
	persona := strings.TrimSpace(string(data))
	if persona == "" {
		log.Printf("[ENGINE] persona file %s is empty, using built-in persona", path)
		return DefaultPersona
	}
	return persona
}
