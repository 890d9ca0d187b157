package service

import "regexp"

// languagePatterns are tried in order; the first match wins.
var languagePatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"javascript", regexp.MustCompile(`\b(function|const|let|var|console\.log|document\.)\b|=>`)},
	{"python", regexp.MustCompile(`\b(def|import|from|print|if __name__|class)\b`)},
	{"java", regexp.MustCompile(`\b(public class|public static void|System\.out\.println)\b`)},
	{"cpp", regexp.MustCompile(`(#include|\biostream\b|\bcout\b|\bcin\b|\bnamespace std\b)`)},
	{"html", regexp.MustCompile(`<[^>]+>`)},
	{"css", regexp.MustCompile(`\{[^}]*\}`)},
	{"sql", regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|FROM|WHERE)\b`)},
	{"json", regexp.MustCompile(`^\s*[\{\[]`)},
	{"xml", regexp.MustCompile(`<\?xml|<[a-zA-Z][^>]*>`)},
}

// detectLanguage guesses the programming language of content, returning ""
// when nothing matches.
func detectLanguage(content string) string {
	for _, p := range languagePatterns {
		if p.pattern.MatchString(content) {
			return p.name
		}
	}
	return ""
}
