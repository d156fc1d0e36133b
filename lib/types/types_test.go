package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtendedDuration(t *testing.T) {
	t.Parallel()

	testCases := map[string]time.Duration{
		"1500":   1500 * time.Millisecond,
		"0.5":    500 * time.Microsecond,
		"90s":    90 * time.Second,
		"2d":     48 * time.Hour,
		"1d30m":  24*time.Hour + 30*time.Minute,
		"-1d2h":  -26 * time.Hour,
		"1h2m3s": time.Hour + 2*time.Minute + 3*time.Second,
	}
	for in, want := range testCases {
		got, err := ParseExtendedDuration(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"", "d", "1.5d", "xd", "1d-2h", "1d2x", "soon"} {
		_, err := ParseExtendedDuration(in)
		assert.Error(t, err, in)
	}
}

func TestNullDurationJSON(t *testing.T) {
	t.Parallel()

	var opts struct {
		Timeout NullDuration `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"timeout": 2500}`), &opts))
	assert.Equal(t, NullDurationFrom(2500*time.Millisecond), opts.Timeout)

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": "1d"}`), &opts))
	assert.Equal(t, NullDurationFrom(24*time.Hour), opts.Timeout)

	require.NoError(t, json.Unmarshal([]byte(`{"timeout": null}`), &opts))
	assert.False(t, opts.Timeout.Valid)

	require.Error(t, json.Unmarshal([]byte(`{"timeout": true}`), &opts))

	data, err := json.Marshal(opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout": null}`, string(data))

	opts.Timeout = NullDurationFrom(3 * time.Second)
	data, err = json.Marshal(opts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout": "3s"}`, string(data))
}

func TestNullDurationText(t *testing.T) {
	t.Parallel()

	var d NullDuration
	require.NoError(t, d.UnmarshalText([]byte("10s")))
	assert.Equal(t, 10*time.Second, d.ValueOrZero())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "10s", string(text))

	require.NoError(t, d.UnmarshalText(nil))
	assert.False(t, d.Valid)
	assert.Zero(t, d.ValueOrZero())

	text, err = NewNullDuration(time.Second, false).MarshalText()
	require.NoError(t, err)
	assert.Empty(t, text)
}
