package fraud

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

func newTestRadar(t *testing.T) *Radar {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Flag{}))
	return NewRadar(db)
}

func testAsset() types.AssetRef {
	return types.AssetRef{
		Collection: common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		TokenID:    1,
	}
}

func TestUnflaggedByDefault(t *testing.T) {
	r := newTestRadar(t)

	flagged, err := r.IsFlagged(testAsset())
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestSetAndClearFlag(t *testing.T) {
	r := newTestRadar(t)
	asset := testAsset()

	require.NoError(t, r.SetFlag(asset, true, "stolen"))
	flagged, err := r.IsFlagged(asset)
	require.NoError(t, err)
	assert.True(t, flagged)

	require.NoError(t, r.SetFlag(asset, false, "recovered"))
	flagged, err = r.IsFlagged(asset)
	require.NoError(t, err)
	assert.False(t, flagged)
}
