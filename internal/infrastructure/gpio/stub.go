//go:build !linux

package gpio

// RealChip is not available on non-Linux platforms.
type RealChip struct{}

// Open returns ErrUnsupported on non-Linux platforms.
func Open(string) (*RealChip, error) {
	return nil, ErrUnsupported
}

// RequestInput is not implemented on non-Linux platforms.
func (c *RealChip) RequestInput(int, InputConfig) (InputLine, error) {
	return nil, ErrUnsupported
}

// RequestOutput is not implemented on non-Linux platforms.
func (c *RealChip) RequestOutput(int, int) (OutputLine, error) {
	return nil, ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (c *RealChip) Close() error {
	return nil
}
