package output

import (
	"encoding/json"
	"io"
)

// JSONFormatter formats data as JSON.
type JSONFormatter struct{}

// Format formats data as indented JSON. Tables are emitted as a list of
// objects keyed by the lower-cased headers.
func (f *JSONFormatter) Format(w io.Writer, data any) error {
	if t, ok := data.(Tabler); ok {
		data = t.Table().Records()
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
