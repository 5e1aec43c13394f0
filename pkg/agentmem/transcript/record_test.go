package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordTextHandlesStringContent(t *testing.T) {
	r, err := ParseLine([]byte(`{"kind":"message","role":"user","content":"hello there"}`))
	require.NoError(t, err)
	require.True(t, r.IsMessage())
	require.Equal(t, "hello there", r.Text())
}

func TestRecordTextHandlesTypedItemArray(t *testing.T) {
	r, err := ParseLine([]byte(`{"kind":"message","role":"assistant","content":[{"type":"text","text":"a"},{"type":"image"},{"type":"text","text":"b"}]}`))
	require.NoError(t, err)
	require.Equal(t, "a\nb", r.Text())
}

func TestIsMessageRejectsUnknownKindOrRole(t *testing.T) {
	r, err := ParseLine([]byte(`{"kind":"tool_call","role":"user","content":"x"}`))
	require.NoError(t, err)
	require.False(t, r.IsMessage())

	r2, err := ParseLine([]byte(`{"kind":"message","role":"narrator","content":"x"}`))
	require.NoError(t, err)
	require.False(t, r2.IsMessage())
}

func TestParseLineTreatsBlankAsNil(t *testing.T) {
	r, err := ParseLine([]byte("   \n"))
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestParseLineErrorsOnCorruptJSON(t *testing.T) {
	_, err := ParseLine([]byte(`{"kind": not json`))
	require.Error(t, err)
}
