package mailer

import "time"

// EmailJob is the JSON payload put on the RabbitMQ queue. Content is rendered before enqueueing,
// so the worker only delivers.
type EmailJob struct {
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Text     string    `json:"text,omitempty"`
	HTML     string    `json:"html,omitempty"`
	QueuedAt time.Time `json:"queued_at"`
}

func NewEmailJob(msg Message, now time.Time) EmailJob {
	return EmailJob{To: msg.To, Subject: msg.Subject, Text: msg.Text, HTML: msg.HTML, QueuedAt: now.UTC()}
}

func (j EmailJob) Message() Message {
	return Message{To: j.To, Subject: j.Subject, Text: j.Text, HTML: j.HTML}
}
