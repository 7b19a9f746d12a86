package bus

import "github.com/tgrady18/EchoedSDK/pkg/api"

// Prompt asks a display surface to render one message and collect an answer.
type Prompt struct {
	Message api.Message `json:"message"`
}

// Response carries the user's answer back to the pipeline. Text may be the
// empty string when the surface reports a dismissal.
type Response struct {
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}
