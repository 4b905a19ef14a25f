package types

import "time"

// Utterance is one turn's output. Immutable once created; the sequence number
// is assigned by the transcript at append time.
type Utterance struct {
	// Speaker is the unique name of the speaker who produced the content.
	Speaker string `json:"speaker"`
	// Content is the utterance text.
	Content string `json:"content"`
	// Seq is the monotonic, gapless sequence number within the transcript.
	// Turn 0 is always the topic, authored by the synthetic user speaker.
	Seq int `json:"seq"`
	// Timestamp records when the utterance was appended.
	Timestamp time.Time `json:"timestamp"`
}

// NewUtterance creates an utterance without a sequence number. Seq is set by
// the transcript when the utterance is appended.
func NewUtterance(speaker, content string) Utterance {
	return Utterance{
		Speaker:   speaker,
		Content:   content,
		Timestamp: time.Now(),
	}
}
