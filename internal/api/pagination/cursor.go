package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const stagedPrefix = "staged_"

// EncodeStagedCursor encodes the last staged row id of a page as an opaque
// keyset cursor.
func EncodeStagedCursor(id int64) string {
	value := fmt.Sprintf("%s%d", stagedPrefix, id)
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeStagedCursor decodes base64(staged_<id>) into a row id.
func DecodeStagedCursor(cursor string) (int64, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return 0, ErrInvalidCursor
	}
	value := string(decoded)
	if !strings.HasPrefix(value, stagedPrefix) {
		return 0, ErrInvalidCursor
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(value, stagedPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidCursor
	}
	return id, nil
}
