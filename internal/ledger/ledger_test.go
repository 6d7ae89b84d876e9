package ledger

import (
	"errors"
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

var (
	alice    = common.HexToAddress("0x1100000000000000000000000000000000000011")
	bob      = common.HexToAddress("0x2200000000000000000000000000000000000022")
	operator = common.HexToAddress("0x3300000000000000000000000000000000000033")
	native   = common.Address{}
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Holding{}, &Approval{}, &Balance{}))
	return NewService(db)
}

func uniqueAsset(tokenID uint64) types.AssetRef {
	return types.AssetRef{
		Collection: common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		TokenID:    tokenID,
		Kind:       types.AssetKindUnique,
		Quantity:   1,
	}
}

func fractionalAsset(tokenID, quantity uint64) types.AssetRef {
	return types.AssetRef{
		Collection: common.HexToAddress("0x00000000000000000000000000000000000000c1"),
		TokenID:    tokenID,
		Kind:       types.AssetKindFractional,
		Quantity:   quantity,
	}
}

func TestMintAndOwnership(t *testing.T) {
	s := newTestService(t)
	asset := uniqueAsset(1)

	require.NoError(t, s.Mint(asset, alice))

	owned, err := s.OwnedQuantity(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), owned)

	ok, err := s.IsApprovedOrOwner(alice, asset)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsApprovedOrOwner(bob, asset)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApprove(t *testing.T) {
	s := newTestService(t)
	asset := uniqueAsset(2)
	require.NoError(t, s.Mint(asset, alice))

	assert.ErrorIs(t, s.Approve(asset, bob, operator), ErrNotOwner,
		"only the owner may grant approval")

	require.NoError(t, s.Approve(asset, alice, operator))
	ok, err := s.IsApprovedOrOwner(operator, asset)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTransferUniqueAsset(t *testing.T) {
	s := newTestService(t)
	asset := uniqueAsset(3)
	require.NoError(t, s.Mint(asset, alice))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.TransferAssetTx(tx, alice, bob, asset)
	})
	require.NoError(t, err)

	fromQty, err := s.OwnedQuantity(alice, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), fromQty)

	toQty, err := s.OwnedQuantity(bob, asset)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), toQty)
}

func TestTransferFractionalAsset(t *testing.T) {
	s := newTestService(t)
	minted := fractionalAsset(4, 100)
	require.NoError(t, s.Mint(minted, alice))

	portion := fractionalAsset(4, 30)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.TransferAssetTx(tx, alice, bob, portion)
	})
	require.NoError(t, err)

	fromQty, err := s.OwnedQuantity(alice, portion)
	require.NoError(t, err)
	assert.Equal(t, uint64(70), fromQty)

	toQty, err := s.OwnedQuantity(bob, portion)
	require.NoError(t, err)
	assert.Equal(t, uint64(30), toQty)
}

func TestTransferWithoutPosition(t *testing.T) {
	s := newTestService(t)
	asset := uniqueAsset(5)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.TransferAssetTx(tx, alice, bob, asset)
	})
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestTransferInsufficientQuantity(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Mint(fractionalAsset(6, 10), alice))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.TransferAssetTx(tx, alice, bob, fractionalAsset(6, 11))
	})
	assert.ErrorIs(t, err, ErrInsufficientAsset)
}

func TestCreditAndBalance(t *testing.T) {
	s := newTestService(t)

	balance, err := s.Balance(native, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance, "missing rows read as zero")

	require.NoError(t, s.Credit(native, alice, 500))
	require.NoError(t, s.Credit(native, alice, 250))

	balance, err = s.Balance(native, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(750), balance)

	assert.ErrorIs(t, s.Credit(native, alice, 0), ErrInvalidAmount)
	assert.ErrorIs(t, s.Credit(native, alice, -1), ErrInvalidAmount)
}

func TestPayTx(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(native, alice, 100))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.PayTx(tx, alice, bob, native, 60)
	})
	require.NoError(t, err)

	aliceBalance, _ := s.Balance(native, alice)
	bobBalance, _ := s.Balance(native, bob)
	assert.Equal(t, int64(40), aliceBalance)
	assert.Equal(t, int64(60), bobBalance)
}

func TestPayTxZeroIsNoOp(t *testing.T) {
	s := newTestService(t)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.PayTx(tx, alice, bob, native, 0)
	})
	assert.NoError(t, err)
}

func TestPayTxInsufficientBalance(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(native, alice, 10))

	err := s.db.Transaction(func(tx *gorm.DB) error {
		return s.PayTx(tx, alice, bob, native, 11)
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, _ := s.Balance(native, alice)
	assert.Equal(t, int64(10), balance, "failed payment must not debit")
}

func TestPayTxRollsBackWithTransaction(t *testing.T) {
	s := newTestService(t)
	require.NoError(t, s.Credit(native, alice, 100))
	boom := errors.New("later step failed")

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.PayTx(tx, alice, bob, native, 60); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	aliceBalance, _ := s.Balance(native, alice)
	bobBalance, _ := s.Balance(native, bob)
	assert.Equal(t, int64(100), aliceBalance)
	assert.Equal(t, int64(0), bobBalance)
}
