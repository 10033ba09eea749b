package core

type (
	SMSMessage struct {
		To   string // MSISDN, international format
		Body string
	}

	// SMSService is any service that can send text messages.
	// Sends are fire-and-forget: a failed delivery must never fail the
	// operation that triggered it.
	SMSService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*SMSMessage)
	}
)

func (m *SMSMessage) IsSendable() bool { return m.To != "" && m.Body != "" }
