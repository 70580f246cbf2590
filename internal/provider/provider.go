package provider

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// Security selects how the connection to the mail server is protected.
type Security string

const (
	SecurityStartTLS Security = "starttls"
	SecurityTLS      Security = "tls"
	SecurityNone     Security = "none"
)

// Account holds the transport settings and credentials used to deliver mail.
type Account struct {
	Host     string
	Port     int
	Username string
	Secret   string
	From     string
	Security Security
}

// Addr returns host:port.
func (a Account) Addr() string {
	return a.Host + ":" + strconv.Itoa(a.Port)
}

// Sender returns the envelope sender, falling back to the username.
func (a Account) Sender() string {
	if a.From != "" {
		return a.From
	}
	return a.Username
}

// Message is the content handed to a Sender.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers a message over an email transport. Implementations must
// honor ctx's deadline and return a *DeliveryError on failure.
type Sender interface {
	Send(ctx context.Context, account Account, msg Message) error
}

// ErrorKind classifies delivery failures.
type ErrorKind int

const (
	// Transient failures (network, timeout, 4xx replies) may succeed later.
	Transient ErrorKind = iota
	// Permanent failures (bad recipient, auth failure, 5xx replies) will not.
	Permanent
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	}
	return "unknown"
}

// DeliveryError is returned by a Sender when a message could not be delivered.
type DeliveryError struct {
	Kind ErrorKind
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery error: %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// TransientError wraps err as a transient DeliveryError.
func TransientError(err error) error {
	return &DeliveryError{Kind: Transient, Err: err}
}

// PermanentError wraps err as a permanent DeliveryError.
func PermanentError(err error) error {
	return &DeliveryError{Kind: Permanent, Err: err}
}

// KindOf returns the kind of the DeliveryError in err's chain. Errors that
// are not DeliveryErrors are treated as transient.
func KindOf(err error) ErrorKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return Transient
}

// IsDeliveryError reports whether err carries a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
