// Package prompts holds the story catalogs (age groups, themes, languages) and
// builds the prompts sent to the story writer.
package prompts

import (
	"fmt"
	"sort"
	"strings"
)

// CustomTheme is the theme value that selects the caller's free-text theme.
const CustomTheme = "Custom"

// DefaultAgeGroup is used when an unknown age group key is requested.
const DefaultAgeGroup = "preschool"

// DefaultLanguage is the language code stories are written in by default.
const DefaultLanguage = "en"

type AgeGroup struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Duration   string `json:"duration"`
	WordCount  int    `json:"word_count"`
	Complexity string `json:"complexity"`
}

// AgeGroups lists the presets in display order.
var AgeGroups = []AgeGroup{
	{
		Key:        "toddler",
		Label:      "Toddler (2-3)",
		Duration:   "5-8 minutes",
		WordCount:  500,
		Complexity: "very simple sentences, lots of repetition, familiar objects and animals, gentle and reassuring tone",
	},
	{
		Key:        "preschool",
		Label:      "Preschool (3-5)",
		Duration:   "8-12 minutes",
		WordCount:  800,
		Complexity: "short paragraphs, basic adventure with happy resolution, simple dialogue, colorful descriptions",
	},
	{
		Key:        "early_reader",
		Label:      "Early Reader (5-7)",
		Duration:   "12-15 minutes",
		WordCount:  1000,
		Complexity: "light dialogue between characters, simple problem-solving, positive messages, mild excitement with calm ending",
	},
	{
		Key:        "older_kids",
		Label:      "Older Kids (7+)",
		Duration:   "15-20 minutes",
		WordCount:  1300,
		Complexity: "fuller narrative arc, character development, gentle life lessons, engaging plot with satisfying resolution",
	},
}

var Themes = []string{
	"Pirates & Treasure",
	"Space Adventure",
	"Dinosaur Discovery",
	"Princess & Castle",
	"Animals & Safari",
	"Underwater World",
	"Superheroes",
	"Magic & Wizards",
	"Robots & Inventions",
}

// LanguageNames maps ISO 639-1 codes to the name used in prompts.
var LanguageNames = map[string]string{
	"en": "English",
	"es": "Spanish (Español)",
	"fr": "French (Français)",
	"de": "German (Deutsch)",
	"it": "Italian (Italiano)",
	"pt": "Portuguese (Português)",
	"nl": "Dutch (Nederlands)",
	"pl": "Polish (Polski)",
	"ru": "Russian (Русский)",
	"ja": "Japanese (日本語)",
	"zh": "Chinese (中文)",
	"ko": "Korean (한국어)",
	"ar": "Arabic (العربية)",
	"hi": "Hindi (हिन्दी)",
	"tr": "Turkish (Türkçe)",
	"sv": "Swedish (Svenska)",
	"da": "Danish (Dansk)",
	"no": "Norwegian (Norsk)",
	"fi": "Finnish (Suomi)",
	"cs": "Czech (Čeština)",
	"el": "Greek (Ελληνικά)",
	"he": "Hebrew (עברית)",
	"hu": "Hungarian (Magyar)",
	"ro": "Romanian (Română)",
	"uk": "Ukrainian (Українська)",
}

// AgeGroupFor returns the preset for key, falling back to preschool.
func AgeGroupFor(key string) AgeGroup {
	for _, g := range AgeGroups {
		if g.Key == key {
			return g
		}
	}
	for _, g := range AgeGroups {
		if g.Key == DefaultAgeGroup {
			return g
		}
	}
	return AgeGroups[0]
}

// IsKnownAgeGroup reports whether key names one of the presets.
func IsKnownAgeGroup(key string) bool {
	for _, g := range AgeGroups {
		if g.Key == key {
			return true
		}
	}
	return false
}

// LanguageName returns the prompt name for code, or English when unknown.
func LanguageName(code string) string {
	if name, ok := LanguageNames[code]; ok {
		return name
	}
	return LanguageNames[DefaultLanguage]
}

// LanguageCodes returns the supported codes, English first and the rest sorted.
func LanguageCodes() []string {
	codes := make([]string, 0, len(LanguageNames))
	for code := range LanguageNames {
		if code != DefaultLanguage {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return append([]string{DefaultLanguage}, codes...)
}

// StoryPrompt builds the user prompt for one story.
func StoryPrompt(childName, ageGroup, theme, language string) string {
	age := AgeGroupFor(ageGroup)
	languageName := LanguageName(language)

	languageInstruction := ""
	if language != "" && language != DefaultLanguage {
		languageInstruction = fmt.Sprintf(`
LANGUAGE REQUIREMENT:
- Write the ENTIRE story in %[1]s
- Use natural, fluent %[1]s appropriate for children
- Keep cultural references appropriate for %[1]s-speaking audiences
`, languageName)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are a warm, caring children's storyteller. Write a bedtime story for a %s child.\n\n",
		strings.ToLower(age.Label))

	b.WriteString("STORY REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Main character name: %s\n", childName)
	fmt.Fprintf(&b, "- Theme: %s\n", theme)
	fmt.Fprintf(&b, "- Target length: approximately %d words (%s when read aloud)\n", age.WordCount, age.Duration)
	fmt.Fprintf(&b, "- Writing style: %s%s\n\n", age.Complexity, languageInstruction)

	b.WriteString("STORY STRUCTURE:\n")
	fmt.Fprintf(&b, "1. GENTLE OPENING: Introduce %s in a cozy, familiar setting\n", childName)
	fmt.Fprintf(&b, "2. DISCOVERY: %s discovers something exciting related to %s\n", childName, theme)
	b.WriteString("3. SMALL ADVENTURE: A fun, age-appropriate adventure unfolds (no real danger)\n")
	b.WriteString("4. POSITIVE RESOLUTION: Everything works out wonderfully\n")
	fmt.Fprintf(&b, "5. CALM ENDING: %s returns home feeling happy and sleepy, ready for dreams\n\n", childName)

	b.WriteString("IMPORTANT RULES:\n")
	fmt.Fprintf(&b, "- Use %s's name naturally throughout (at least 8-10 times)\n", childName)
	b.WriteString("- NO scary content, villains, monsters, or danger\n")
	b.WriteString("- NO violence, conflict, or sad moments\n")
	b.WriteString("- NO complex vocabulary - keep it age-appropriate\n")
	b.WriteString("- NO cliffhangers - the story must have a complete, satisfying ending\n")
	b.WriteString("- The ending should be calming and sleep-inducing\n")
	b.WriteString("- Use warm, reassuring language throughout\n\n")

	b.WriteString("Write the complete story now. Do not include a title - just start with the story text.")

	return b.String()
}

// SystemPrompt is sent as the system message with every story request.
func SystemPrompt() string {
	return `You are a professional children's story writer specializing in bedtime stories.
Your stories are:
- Warm, gentle, and reassuring
- Age-appropriate and engaging
- Perfect for helping children fall asleep
- Full of wonder and positive messages

You always follow the exact requirements given and never include scary or inappropriate content.
You write stories that parents trust and children love.`
}
