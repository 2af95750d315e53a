package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cahya-wirawan/web-rwkv/internal/device"
	"github.com/cahya-wirawan/web-rwkv/model"
)

func TestBuildModelV4(t *testing.T) {
	info := model.Info{Version: model.V4, NumLayer: 2, NumEmb: 4, NumHidden: 8, NumVocab: 6}
	dev := device.NewCPUDevice()
	m, err := BuildModel(dev, info)
	require.NoError(t, err)
	assert.Len(t, m.Layers, 2)
	assert.Equal(t, info.NumEmb, m.EmbedHost.Shape()[0])
}

func TestBuildModelV5(t *testing.T) {
	info := model.Info{Version: model.V5, NumLayer: 2, NumEmb: 4, NumHidden: 8, NumVocab: 6, HeadSize: 2}
	dev := device.NewCPUDevice()
	m, err := BuildModel(dev, info)
	require.NoError(t, err)
	assert.Len(t, m.Layers, 2)
}
