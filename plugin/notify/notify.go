// Package notify delivers operator notifications over chat channels.
package notify

import (
	"context"
)

// Level is the urgency of a message.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// Rank orders levels; higher is more urgent.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

// ParseLevel maps configuration values onto levels. "high" and "medium"
// are accepted as aliases of critical and warning.
func ParseLevel(s string) Level {
	switch s {
	case "critical", "high":
		return LevelCritical
	case "warning", "medium":
		return LevelWarning
	default:
		return LevelInfo
	}
}

// Text is a Block Kit text object.
type Text struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// Block is a Block Kit layout block.
type Block struct {
	Type     string `json:"type"`
	Text     *Text  `json:"text,omitempty"`
	Fields   []Text `json:"fields,omitempty"`
	Elements []Text `json:"elements,omitempty"`
}

// Header returns a header block.
func Header(text string) Block {
	return Block{Type: "header", Text: &Text{Type: "plain_text", Text: text, Emoji: true}}
}

// Section returns a mrkdwn section block.
func Section(text string) Block {
	return Block{Type: "section", Text: &Text{Type: "mrkdwn", Text: text}}
}

// Fields returns a section block of mrkdwn fields.
func Fields(fields ...string) Block {
	b := Block{Type: "section"}
	for _, f := range fields {
		b.Fields = append(b.Fields, Text{Type: "mrkdwn", Text: f})
	}
	return b
}

// Divider returns a divider block.
func Divider() Block {
	return Block{Type: "divider"}
}

// Context returns a context block of mrkdwn elements.
func Context(elements ...string) Block {
	b := Block{Type: "context"}
	for _, e := range elements {
		b.Elements = append(b.Elements, Text{Type: "mrkdwn", Text: e})
	}
	return b
}

// Message is one notification. Text is the fallback shown where blocks
// are not rendered.
type Message struct {
	Level  Level   `json:"-"`
	Text   string  `json:"text"`
	Blocks []Block `json:"blocks,omitempty"`
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
