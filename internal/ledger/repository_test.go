package ledger

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationFailure(t *testing.T) {
	require.True(t, isSerializationFailure(&pgconn.PgError{Code: "40001"}))
	require.True(t, isSerializationFailure(&pgconn.PgError{Code: "40P01"}))
	require.True(t, isSerializationFailure(fmt.Errorf("platform/db: commit tx: %w", &pgconn.PgError{Code: "40001"})))
	require.False(t, isSerializationFailure(&pgconn.PgError{Code: "23505"}))
	require.False(t, isSerializationFailure(fmt.Errorf("connection refused")))
	require.False(t, isSerializationFailure(nil))
}
