package nlu

import "strings"

// Intent is the classified form of one utterance.
type Intent struct {
	Action  Action
	Message string
}

// Parse turns a raw completion like "<LIGHT_ON>Turning it on</LIGHT_ON>" into
// an Intent. It never fails: anything it cannot classify becomes a
// GeneralResponse carrying the trimmed raw text.
//
// The tag name runs from the first '<' up to the next '<' or '>', whichever
// comes first. The message runs from the first '>' up to the next '<'.
func Parse(raw string) Intent {
	text := strings.TrimSpace(raw)

	if !strings.Contains(text, "<") || !strings.Contains(text, ">") {
		return Intent{Action: GeneralResponse, Message: text}
	}

	name := text[strings.Index(text, "<")+1:]
	if i := strings.Index(name, "<"); i >= 0 {
		name = name[:i]
	}
	if i := strings.Index(name, ">"); i >= 0 {
		name = name[:i]
	}

	action, ok := LookupAction(name)
	if !ok {
		return Intent{Action: GeneralResponse, Message: text}
	}

	msg := text[strings.Index(text, ">")+1:]
	if i := strings.Index(msg, "<"); i >= 0 {
		msg = msg[:i]
	}

	return Intent{Action: action, Message: strings.TrimSpace(msg)}
}
