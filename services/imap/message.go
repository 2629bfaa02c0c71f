package imap

import (
	"fmt"

	go_imap "github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
)

func subjectOf(envelope *go_imap.Envelope) string {
	if envelope == nil || envelope.Subject == "" {
		return "(no subject)"
	}
	return envelope.Subject
}

func senderOf(envelope *go_imap.Envelope) string {
	if envelope == nil || len(envelope.From) == 0 {
		return "(unknown sender)"
	}

	sender := envelope.From[0]
	if sender.PersonalName != "" {
		return fmt.Sprintf("%s <%s>", sender.PersonalName, sender.Address())
	}
	return sender.Address()
}

// htmlBodyOf walks the fetched MIME structure and returns the first inline
// HTML part, or an empty string when the message carries none.
func htmlBodyOf(msg *go_imap.Message, section *go_imap.BodySectionName) string {
	if msg == nil {
		return ""
	}

	literal := msg.GetBody(section)
	if literal == nil {
		return ""
	}

	envelope, err := enmime.ReadEnvelope(literal)
	if err != nil {
		return ""
	}

	return envelope.HTML
}
