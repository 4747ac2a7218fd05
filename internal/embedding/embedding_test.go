package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckDimensionWarnsOnDrift(t *testing.T) {
	var gotOld, gotNew int
	p := &Provider{
		configuredDim: 1536,
		observedDim:   1536,
		onDimensionDrift: func(oldDim, newDim int) {
			gotOld, gotNew = oldDim, newDim
		},
	}

	p.checkDimension(768)
	assert.Equal(t, 1536, gotOld)
	assert.Equal(t, 768, gotNew)
	assert.Equal(t, 768, p.Dimension())
}

func TestCheckDimensionNoOpWhenUnchanged(t *testing.T) {
	called := false
	p := &Provider{
		configuredDim:    1536,
		observedDim:      1536,
		onDimensionDrift: func(int, int) { called = true },
	}

	p.checkDimension(1536)
	assert.False(t, called)
	assert.Equal(t, 1536, p.Dimension())
}

func TestEmbedRejectsEmptyTexts(t *testing.T) {
	p := &Provider{observedDim: 1536, onDimensionDrift: func(int, int) {}}
	_, err := p.Embed(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyTexts)
}
