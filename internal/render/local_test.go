package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalPrintOptionsMatchRemote(t *testing.T) {
	t.Parallel()

	local := localPrintOptions()
	remote := (&RemoteRenderer{}).options()

	assert.Empty(t, local.PageRanges, "overflowing content must reach the page count check")
	assert.Equal(t, remote.PaperWidth, *local.PaperWidth)
	assert.Equal(t, remote.PaperHeight, *local.PaperHeight)
	assert.Equal(t, remote.MarginTop, *local.MarginTop)
	assert.Equal(t, remote.MarginLeft, *local.MarginLeft)
	assert.Equal(t, remote.PrintBackground, local.PrintBackground)
	assert.True(t, local.PreferCSSPageSize)
}
