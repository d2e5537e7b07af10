package domain

// DeltaEventData is the data of a streamed text delta from the agent.
type DeltaEventData struct {
	Text    string `json:"text"`
	Delta   string `json:"delta"`
	Content string `json:"content"`
}

// Chunk returns the first non-empty text field.
func (d *DeltaEventData) Chunk() string {
	switch {
	case d.Text != "":
		return d.Text
	case d.Delta != "":
		return d.Delta
	default:
		return d.Content
	}
}

// ErrorEventData is the data of an error event from the agent.
type ErrorEventData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
