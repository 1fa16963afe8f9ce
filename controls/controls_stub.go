//go:build !linux

package controls

// New returns an error on non-linux platforms if anything is configured.
func New(cfg Config, handlers Handlers) (*Controls, error) {
	if len(cfg.Buttons.pins()) == 0 && !cfg.Rotary.Enabled() {
		return nil, nil
	}
	return nil, ErrNotSupported
}
