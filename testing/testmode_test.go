package testing

import (
	stdtesting "testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-costing/internal/app"
)

func TestBinariesSeeTestMode(t *stdtesting.T) {
	app.RefreshTestMode()
	require.True(t, app.InTestMode())

	_, err := app.LoadConfig()
	require.NoError(t, err)
}
