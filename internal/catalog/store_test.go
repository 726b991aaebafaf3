package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildListQuery(t *testing.T) {
	where, args := buildListQuery(ListParams{})
	require.Empty(t, where)
	require.Empty(t, args)

	featured := true
	inStock := true
	where, args = buildListQuery(ListParams{Category: "Sarees", Query: "silk", Featured: &featured, InStock: &inStock})
	require.Equal(t, " WHERE lower(category) = lower($1) AND (name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%') AND featured = $3 AND stock_quantity > 0", where)
	require.Equal(t, []any{"Sarees", "silk", true}, args)
}

func TestOrderClause(t *testing.T) {
	require.Equal(t, " ORDER BY price ASC, id", orderClause("price_asc"))
	require.Equal(t, " ORDER BY created_at DESC, id", orderClause(""))
}
