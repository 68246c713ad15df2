package domain_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rpattn/propspec/internal/domain"
)

func TestValidatePath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", "site", "site.a_1.B2"} {
		require.NoError(t, domain.ValidatePath(path), path)
	}
	for _, path := range []string{".", "site.", "site..a", "site.a-b", "a b"} {
		require.ErrorIs(t, domain.ValidatePath(path), domain.ErrInvalidEntityPath, path)
	}
}

func TestParentPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "site.a", domain.ParentPath("site.a.pump"))
	require.Equal(t, "site", domain.ParentPath("site.a"))
	require.Equal(t, "", domain.ParentPath("site"))
	require.Equal(t, "", domain.ParentPath(""))
}
