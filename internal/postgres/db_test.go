package postgres

import (
	"github.com/stretchr/testify/require"
	"strings"
	"testing"
)

func TestSchemaIsIdempotent(t *testing.T) {
	ddl := Schema()
	require.NotEmpty(t, ddl)

	for _, stmt := range strings.Split(ddl, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		require.Regexp(t, `^CREATE (TABLE|INDEX) IF NOT EXISTS`, stmt)
	}
}

func TestSchemaGuardsStock(t *testing.T) {
	ddl := Schema()
	require.Contains(t, ddl, "CHECK (stock >= 0)")
	require.Contains(t, ddl, "CHECK (quantity > 0)")
	require.Contains(t, ddl, "WHERE published_at IS NULL")
}
