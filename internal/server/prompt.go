package server

import "strings"

const contextFilesHeader = "Use the following files as context for this request:"

// composePrompt builds the exact text written to the spawned process's stdin.
// With no context files the user message passes through verbatim.
func composePrompt(message string, contextFiles []string) string {
	if len(contextFiles) == 0 {
		return message
	}
	var sb strings.Builder
	sb.WriteString(contextFilesHeader)
	sb.WriteString("\n")
	for _, p := range contextFiles {
		sb.WriteString("- ")
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	sb.WriteString("\nUser question: ")
	sb.WriteString(message)
	return sb.String()
}
