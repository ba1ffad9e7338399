package gemini

import "google.golang.org/genai"

// Event is one upstream message as seen by the relay. Exactly one of Audio
// and Metadata is set.
type Event struct {
	Audio    []byte // Synthesized speech
	Metadata any    // Transcripts, turn markers, setup acks... passed through as-is
}

// IsAudio reports whether the event carries speech
func (e Event) IsAudio() bool {
	return len(e.Audio) > 0
}

// EventFromMessage splits a server message into an audio or a metadata
// event. Inline audio takes precedence: a message carrying both audio parts
// and other fields yields only the audio.
func EventFromMessage(msg *genai.LiveServerMessage) (Event, bool) {
	if msg == nil {
		return Event{}, false
	}
	if audio := inlineAudio(msg); len(audio) > 0 {
		return Event{Audio: audio}, true
	}
	return Event{Metadata: msg}, true
}

// inlineAudio concatenates the inline data of the model turn parts
func inlineAudio(msg *genai.LiveServerMessage) []byte {
	if msg.ServerContent == nil || msg.ServerContent.ModelTurn == nil {
		return nil
	}
	var out []byte
	for _, part := range msg.ServerContent.ModelTurn.Parts {
		if part != nil && part.InlineData != nil {
			out = append(out, part.InlineData.Data...)
		}
	}
	return out
}
