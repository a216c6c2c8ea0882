package framework

import "strings"

// FinalAnswerMarker separates a transcript from its final answer in every
// textual output. Consumers split on its last occurrence.
const FinalAnswerMarker = "Final Answer:"

// SplitTranscriptAndFinal splits text on the last FinalAnswerMarker. Without
// a marker the whole text is the transcript and the answer is empty.
func SplitTranscriptAndFinal(text string) (transcript, final string) {
	if text == "" {
		return "", ""
	}
	i := strings.LastIndex(text, FinalAnswerMarker)
	if i < 0 {
		return text, ""
	}
	return strings.TrimRight(text[:i], " \t\r\n"), strings.TrimSpace(text[i+len(FinalAnswerMarker):])
}
