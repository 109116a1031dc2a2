package socket

import "time"

// Reliable-send tuning defaults, overridable per send.
const (
	DefaultRequireAcks    = 1
	DefaultAckTimeout     = 350 * time.Millisecond
	DefaultResendInterval = 100 * time.Millisecond
)

// staleAfter is how long a reassembly entry may sit idle before the poll
// loop purges it.
const staleAfter = 2 * time.Second

// SendOptions controls one outbound message. The zero value is a plain
// fire-and-forget send; set Reliable for the ack/resend loop. Zero-valued
// tuning fields fall back to the defaults above.
type SendOptions struct {
	Reliable       bool
	RequireAcks    int           // confirming peers needed before success
	AckTimeout     time.Duration // give up waiting after this much time
	ResendInterval time.Duration // retransmit the full sequence at this cadence
}

// withDefaults fills in zero-valued tuning fields.
func (o SendOptions) withDefaults() SendOptions {
	if o.RequireAcks <= 0 {
		o.RequireAcks = DefaultRequireAcks
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = DefaultAckTimeout
	}
	if o.ResendInterval <= 0 {
		o.ResendInterval = DefaultResendInterval
	}
	return o
}
