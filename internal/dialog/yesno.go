package dialog

import (
	"strings"
	"unicode/utf8"
)

// Answer is the tri-state result of interpreting a free-text reply to a
// yes/no prompt.
type Answer int

const (
	// AnswerAmbiguous means the reply is neither a clear yes nor a clear no.
	AnswerAmbiguous Answer = iota
	// AnswerYes means a short affirmative reply.
	AnswerYes
	// AnswerNo means a negative reply.
	AnswerNo
)

// Short-utterance bounds. A free-text prompt can receive an unrelated
// sentence that merely starts with a matching letter, so an affirmative
// only counts when the whole reply is short. Negative replies are held
// to a looser standard: a reply whose first word is exactly a negative
// marker ("nein danke") is still a no.
const (
	yesLengthBound = 5
	noLengthBound  = 7
)

// YesNoInterpreter parses free-text replies against language-configured
// affirmative and negative markers.
type YesNoInterpreter struct {
	yesMarkers []string
	noMarkers  []string
}

// NewYesNoInterpreter creates an interpreter for the given marker lists.
// Markers are matched lowercase.
func NewYesNoInterpreter(yesMarkers, noMarkers []string) *YesNoInterpreter {
	return &YesNoInterpreter{
		yesMarkers: lowerAll(yesMarkers),
		noMarkers:  lowerAll(noMarkers),
	}
}

// Interpret normalizes text (lowercase, trimmed) and maps it to Yes, No
// or Ambiguous.
func (i *YesNoInterpreter) Interpret(text string) Answer {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return AnswerAmbiguous
	}
	length := utf8.RuneCountInString(norm)

	for _, m := range i.yesMarkers {
		if strings.HasPrefix(norm, m) && length < yesLengthBound {
			return AnswerYes
		}
	}

	firstWord, _, _ := strings.Cut(norm, " ")
	for _, m := range i.noMarkers {
		if firstWord == m {
			return AnswerNo
		}
		if strings.HasPrefix(norm, m) && length < noLengthBound {
			return AnswerNo
		}
	}

	return AnswerAmbiguous
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
