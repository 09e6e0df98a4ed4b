package exceptor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopInterceptorIsInert(t *testing.T) {
	var i noopInterceptor
	require.NoError(t, i.ReplaceSignalFunctions(func(int, SavedDisposition) SavedDisposition {
		t.Fatal("noopInterceptor must never invoke the install callback")
		return SavedDisposition{}
	}))
	require.NoError(t, i.RevertSignalFunctions())
}
