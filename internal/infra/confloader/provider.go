package confloader

import (
	"errors"

	"github.com/knadh/koanf/maps"
)

// ErrReadBytesNotSupported is returned when ReadBytes is called on a
// map provider.
var ErrReadBytesNotSupported = errors.New("confloader: ReadBytes not supported, use Read() instead")

// mapProvider is a koanf provider serving a map.
type mapProvider map[string]any

// ReadBytes returns an error as map provider doesn't support byte serialization.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, ErrReadBytesNotSupported
}

// Read returns the configuration map. Dotted keys such as
// "storage.backend" are expanded into nested sections.
func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
