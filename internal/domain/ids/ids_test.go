package ids

import (
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

const testULID = "01HYX3KQW7ERTV9XNBM2P8QJZF"

func TestNewULIDReturnsValid(t *testing.T) {
	value, err := NewULID()

	require.NoError(t, err)
	require.NoError(t, ValidateULID(value))
}

func TestNewULIDMonotonic(t *testing.T) {
	values := make([]string, 0, 200)
	for range 200 {
		value, err := NewULID()
		require.NoError(t, err)
		values = append(values, value)
	}

	require.True(t, sort.StringsAreSorted(values))
}

func TestIsULIDAndValidateULID(t *testing.T) {
	require.True(t, IsULID(testULID))
	require.True(t, IsULID(" "+testULID+" "))
	require.NoError(t, ValidateULID(testULID))

	require.False(t, IsULID("not-a-ulid"))
	require.ErrorIs(t, ValidateULID("not-a-ulid"), ErrInvalidULID)
}

func TestUUIDToString(t *testing.T) {
	id := uuid.New()

	require.Equal(t, id.String(), UUIDToString(pgtype.UUID{Bytes: id, Valid: true}))
	require.Equal(t, "", UUIDToString(pgtype.UUID{}))
}
