package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	p := NewPagination(3, 10, 42)
	require.Equal(t, 3, p.Page)
	require.Equal(t, 10, p.PerPage)
	require.Equal(t, 5, p.TotalPages)
	require.Equal(t, 20, p.Offset())
}

func TestNewPaginationDefaults(t *testing.T) {
	p := NewPagination(0, 0, 7)
	require.Equal(t, 1, p.Page)
	require.Equal(t, 20, p.PerPage)
	require.Equal(t, 1, p.TotalPages)
	require.Equal(t, 0, p.Offset())
}
