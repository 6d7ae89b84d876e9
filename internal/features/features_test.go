package features

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/seismic-labs/exchange-api/internal/types"
)

var identity = common.HexToAddress("0x1100000000000000000000000000000000000011")

func newTestGate(t *testing.T, global types.FeatureFlags) *Gate {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Override{}))
	return NewGate(db, global)
}

func TestGlobalMask(t *testing.T) {
	g := newTestGate(t, types.FeatureInstantLiquidation)
	assert.Equal(t, types.FeatureInstantLiquidation, g.GlobalMask())

	g.SetGlobalFlags(types.FeatureFraudGating | types.FeatureMultiRoyalty)
	assert.Equal(t, types.FeatureFraudGating|types.FeatureMultiRoyalty, g.GlobalMask())
}

func TestMaskForWithoutOverride(t *testing.T) {
	g := newTestGate(t, types.FeatureInstantLiquidation)

	mask, err := g.MaskFor(identity)
	require.NoError(t, err)
	assert.Equal(t, types.FeatureInstantLiquidation, mask)
}

func TestMaskForMergesOverride(t *testing.T) {
	g := newTestGate(t, types.FeatureInstantLiquidation)
	require.NoError(t, g.SetUserFlags(identity, types.FeatureMultiRoyalty))

	mask, err := g.MaskFor(identity)
	require.NoError(t, err)
	assert.Equal(t, types.FeatureInstantLiquidation|types.FeatureMultiRoyalty, mask)

	// Other identities only see the global mask.
	mask, err = g.MaskFor(common.HexToAddress("0x22"))
	require.NoError(t, err)
	assert.Equal(t, types.FeatureInstantLiquidation, mask)
}

func TestSetUserFlagsReplaces(t *testing.T) {
	g := newTestGate(t, 0)
	require.NoError(t, g.SetUserFlags(identity, types.FeatureMultiRoyalty))
	require.NoError(t, g.SetUserFlags(identity, types.FeatureFraudGating))

	mask, err := g.MaskFor(identity)
	require.NoError(t, err)
	assert.Equal(t, types.FeatureFraudGating, mask, "override is replaced, not accumulated")
}

func TestEnabled(t *testing.T) {
	g := newTestGate(t, types.FeatureInstantLiquidation)

	on, err := g.Enabled(types.FeatureInstantLiquidation, identity)
	require.NoError(t, err)
	assert.True(t, on)

	on, err = g.Enabled(types.FeatureCrossChain, identity)
	require.NoError(t, err)
	assert.False(t, on)
}
