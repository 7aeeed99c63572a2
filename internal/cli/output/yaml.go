package output

import (
	"io"

	"go.yaml.in/yaml/v3"
)

// YAMLFormatter formats data as YAML.
type YAMLFormatter struct{}

// Format formats data as YAML. Tables are emitted as a list of mappings
// keyed by the lower-cased headers.
func (f *YAMLFormatter) Format(w io.Writer, data any) error {
	if t, ok := data.(Tabler); ok {
		data = t.Table().Records()
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}
