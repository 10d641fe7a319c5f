package domain

import "time"

// Config carries the runtime settings the handlers and services need.
type Config struct {
	Listen             string
	SigningSecret      string
	TokenSecret        string
	ValidityWindow     time.Duration
	ProbeInterval      time.Duration
	GuarantorsRequired int
}
