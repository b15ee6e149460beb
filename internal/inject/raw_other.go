//go:build !linux

package inject

// RawSink is only available on Linux
type RawSink struct{}

// NewRawSink always fails outside Linux
func NewRawSink(iface string) (*RawSink, error) {
	return nil, ErrRawUnsupported
}

func (s *RawSink) WriteFrame(frame []byte) error {
	return ErrRawUnsupported
}

func (s *RawSink) Close() error {
	return nil
}
