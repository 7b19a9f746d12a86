// Package api implements the JSON-over-HTTPS client for the Echoed backend.
package api

// MessageType enumerates the fixed set of prompt kinds the backend can send.
type MessageType string

const (
	MessageTextInput    MessageType = "textInput"
	MessageMultiChoice  MessageType = "multiChoice"
	MessageYesNo        MessageType = "yesNo"
	MessageThumbsUpDown MessageType = "thumbsUpDown"
)

// Message is a single prompt to present to the user. Immutable once
// received; Options is present and non-empty only for multiChoice.
type Message struct {
	ID       string      `json:"id"`
	AnchorID string      `json:"anchorId"`
	Type     MessageType `json:"type"`
	Title    string      `json:"title"`
	Content  string      `json:"content"`
	Options  []string    `json:"options"`
}

// Condition is one clause of a server-side targeting rule. The client never
// evaluates these; they are exposed for inspection tooling only.
type Condition struct {
	Key       string `json:"key"`
	Operation string `json:"operation"` // equals | notEquals | greaterThan | lessThan | contains | notContains
	Value     any    `json:"value"`
}

// RuleSet groups conditions with the messages they gate.
type RuleSet struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	MessageIDs []string    `json:"messageIds"`
}

// TagDefinition describes a tag as the backend has observed it.
type TagDefinition struct {
	TagID               string   `json:"tagId"`
	DataType            string   `json:"dataType"`
	FirstSeen           string   `json:"firstSeen"`
	LastSeen            string   `json:"lastSeen"`
	AvailableOperations []string `json:"availableOperations"`
}
