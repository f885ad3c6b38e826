package ports

// Channel is the send half of one live peer connection.
type Channel interface {
	Send(payload []byte) error
}
