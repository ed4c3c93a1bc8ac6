package ports

// Transport is the outbound byte sink toward the ground link. Each call
// carries exactly one encoded frame.
type Transport interface {
	WriteFrame(frame []byte) error
	Name() string
}
