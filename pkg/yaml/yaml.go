package yaml

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

func Unmarshal(in []byte, out any) error {
	return yaml.Unmarshal(in, out)
}

func Encode(v any, indent int) ([]byte, error) {
	b := bytes.NewBuffer(nil)
	e := yaml.NewEncoder(b)
	e.SetIndent(indent)

	if err := e.Encode(v); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Validate - src is a YAML mapping, empty document is valid
func Validate(src []byte) error {
	var v map[string]any
	return yaml.Unmarshal(src, &v)
}
