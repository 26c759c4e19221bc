// Package transcript models the ordered conversation of a run.
package transcript

import (
	"time"

	"github.com/abhisek/medisim/internal/intent"
)

// Sender identifies who wrote a message.
type Sender string

const (
	Student Sender = "student"
	Patient Sender = "patient"
)

// Message is one transcript entry. Tags are set on student messages only.
// Seq orders messages within a run and is assigned when the message is
// stored.
type Message struct {
	Seq       int
	Sender    Sender
	Text      string
	Tags      intent.Tags
	CreatedAt time.Time
}

// FromStudent builds a student message carrying tags.
func FromStudent(text string, tags intent.Tags, at time.Time) Message {
	return Message{Sender: Student, Text: text, Tags: tags, CreatedAt: at}
}

// FromPatient builds a patient message. Patient messages carry no tags.
func FromPatient(text string, at time.Time) Message {
	return Message{Sender: Patient, Text: text, CreatedAt: at}
}

// Transcript is a run's messages in Seq order.
type Transcript []Message

// TagUnion returns every tag across all messages, in first-seen order.
func (t Transcript) TagUnion() intent.Tags {
	var out intent.Tags
	for _, m := range t {
		for _, tag := range m.Tags {
			if !out.Contains(tag) {
				out = append(out, tag)
			}
		}
	}
	return out
}
