package yaml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	v := map[string]any{
		"v4l2": map[string]any{
			"cam": map[string]any{"path": "/dev/video0", "autostart": true},
		},
	}

	b, err := Encode(v, 2)
	require.Nil(t, err)
	require.Equal(t, `v4l2:
  cam:
    autostart: true
    path: /dev/video0
`, string(b))

	var out map[string]any
	require.Nil(t, Unmarshal(b, &out))
	require.Equal(t, v, out)
}

func TestValidate(t *testing.T) {
	require.Nil(t, Validate(nil))
	require.Nil(t, Validate([]byte("api:\n  listen: \":1984\"\n")))
	require.NotNil(t, Validate([]byte("- item")))
	require.NotNil(t, Validate([]byte("api: [")))
}
