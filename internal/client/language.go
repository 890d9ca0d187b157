package client

import (
	"path/filepath"
	"strings"
)

var extensionLanguages = map[string]string{
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "javascript",
	".tsx":  "javascript",
	".py":   "python",
	".java": "java",
	".c":    "cpp",
	".h":    "cpp",
	".cpp":  "cpp",
	".css":  "css",
	".html": "html",
	".xml":  "xml",
	".json": "json",
	".sql":  "sql",
}

// LanguageForFile maps a file name to the language the server highlights
// it as, or "" when the extension is not a known source type.
func LanguageForFile(name string) string {
	if name == "" {
		return ""
	}
	return extensionLanguages[strings.ToLower(filepath.Ext(name))]
}
