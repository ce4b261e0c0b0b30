package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeStagedCursor(t *testing.T) {
	cursor := EncodeStagedCursor(42)

	decoded, err := DecodeStagedCursor("  " + cursor + " ")

	require.NoError(t, err)
	require.Equal(t, int64(42), decoded)
}

func TestStagedCursorIsOpaque(t *testing.T) {
	require.NotContains(t, EncodeStagedCursor(1234), "1234")
}

func TestDecodeStagedCursorErrors(t *testing.T) {
	encode := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }

	for _, cursor := range []string{
		"",
		"not-base64!",
		encode("seq_42"),
		encode("staged_"),
		encode("staged_abc"),
		encode("staged_0"),
		encode("staged_-5"),
	} {
		_, err := DecodeStagedCursor(cursor)
		require.ErrorIs(t, err, ErrInvalidCursor, cursor)
	}
}
