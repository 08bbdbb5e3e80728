// Package scanner derives facts from repository metadata and README text.
//
// Detection is a case-insensitive word-boundary regex per known tool or
// service. The rule tables are deliberately small and literal; adding a
// tool means adding one entry, not training anything.
package scanner

import (
	"regexp"
	"sort"
)

// Detection is one matched rule with its mention count.
type Detection struct {
	Name     string
	Mentions int
}

type rule struct {
	name    string
	pattern *regexp.Regexp
}

func mustRule(name, expr string) rule {
	return rule{name: name, pattern: regexp.MustCompile(`(?i)\b(?:` + expr + `)\b`)}
}

// aiToolRules matches mentions of AI coding tools in README text.
var aiToolRules = []rule{
	mustRule("Claude", `claude(?:\s+code)?`),
	mustRule("GitHub Copilot", `(?:github\s+)?copilot`),
	mustRule("ChatGPT", `chat\s?gpt|gpt-[45][a-z0-9.-]*`),
	mustRule("OpenAI", `openai`),
	mustRule("Cursor", `cursor\s+(?:ai|ide|editor)`),
	mustRule("Gemini", `gemini`),
	mustRule("Windsurf", `windsurf`),
	mustRule("Aider", `aider`),
	mustRule("Ollama", `ollama`),
}

// serviceRules matches mentions of hosting and infrastructure services.
var serviceRules = []rule{
	mustRule("Vercel", `vercel`),
	mustRule("Netlify", `netlify`),
	mustRule("Heroku", `heroku`),
	mustRule("AWS", `aws|amazon\s+web\s+services`),
	mustRule("Google Cloud", `gcp|google\s+cloud`),
	mustRule("Azure", `azure`),
	mustRule("Cloudflare", `cloudflare`),
	mustRule("Fly.io", `fly\.io`),
	mustRule("Railway", `railway`),
	mustRule("Docker", `docker`),
	mustRule("Kubernetes", `kubernetes|k8s`),
	mustRule("Supabase", `supabase`),
	mustRule("Firebase", `firebase`),
}

func detect(rules []rule, text string) []Detection {
	if text == "" {
		return nil
	}

	var found []Detection

	for _, r := range rules {
		matches := r.pattern.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}

		found = append(found, Detection{Name: r.name, Mentions: len(matches)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Name < found[j].Name })

	return found
}

// AITools returns AI-tool mentions found in README text.
func AITools(text string) []Detection {
	return detect(aiToolRules, text)
}

// Services returns hosting-service mentions found in README text.
func Services(text string) []Detection {
	return detect(serviceRules, text)
}
