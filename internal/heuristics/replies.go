package heuristics

import "fmt"

// Replies renders persona-flavoured canned text.
type Replies struct {
	CompanyName string
	BotName     string
}

// NameRequest greets a user whose name is unknown and asks for it.
func (r Replies) NameRequest() string {
	return fmt.Sprintf("Hi! I'm %s from %s. What name should I call you?", r.BotName, r.CompanyName)
}

// Welcome greets a user whose name is known.
func (r Replies) Welcome(name string) string {
	return fmt.Sprintf("Welcome back, %s! I'm %s from %s. How can I help you today?", name, r.BotName, r.CompanyName)
}

// NameAck acknowledges a captured name.
func (r Replies) NameAck(name string) string {
	return fmt.Sprintf("Nice to meet you, %s! I'm %s from %s. How can I help you today?", name, r.BotName, r.CompanyName)
}

// Thanks answers a thank-you.
func (r Replies) Thanks(name string) string {
	return fmt.Sprintf("You're welcome%s! Is there anything else I can help you with?", withName(name))
}

// Farewell answers a goodbye.
func (r Replies) Farewell(name string) string {
	return fmt.Sprintf("Goodbye%s! Feel free to come back any time you have questions about %s.", withName(name), r.CompanyName)
}

// SmallTalk renders the reply for a small-talk classification given the known name.
func (r Replies) SmallTalk(kind Kind, name string) string {
	switch kind {
	case KindThanks:
		return r.Thanks(name)
	case KindFarewell:
		return r.Farewell(name)
	default:
		if name == "" {
			return r.NameRequest()
		}
		return r.Welcome(name)
	}
}

func withName(name string) string {
	if name == "" {
		return ""
	}
	return ", " + name
}
