package registry

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&OrderState{}))
	return NewService(db)
}

var (
	maker = common.HexToAddress("0x1100000000000000000000000000000000000011")
	other = common.HexToAddress("0x2200000000000000000000000000000000000022")
)

func digestOf(seed string) common.Hash {
	return crypto.Keccak256Hash([]byte(seed))
}

func TestUntouchedDigestIsNotTerminal(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("fresh")

	terminal, err := s.IsTerminal(digest)
	require.NoError(t, err)
	assert.False(t, terminal)

	state, err := s.State(digest)
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestCancel(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("cancel-me")

	require.NoError(t, s.Cancel(digest, maker, maker))

	terminal, err := s.IsTerminal(digest)
	require.NoError(t, err)
	assert.True(t, terminal)

	state, err := s.State(digest)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Cancelled)
	assert.False(t, state.Finalized)
}

func TestCancelOnlyByMaker(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("not-yours")

	assert.ErrorIs(t, s.Cancel(digest, maker, other), ErrNotMaker)

	terminal, err := s.IsTerminal(digest)
	require.NoError(t, err)
	assert.False(t, terminal, "failed cancel must not touch state")
}

func TestCancelTerminalOrder(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("twice")

	require.NoError(t, s.Cancel(digest, maker, maker))
	assert.ErrorIs(t, s.Cancel(digest, maker, maker), ErrAlreadyTerminal)
}

func TestFinalizeTx(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("finalize")

	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		return s.FinalizeTx(tx, digest, maker)
	})
	require.NoError(t, err)

	terminal, err := s.IsTerminal(digest)
	require.NoError(t, err)
	assert.True(t, terminal)
}

func TestFinalizeTxRejectsTerminal(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("consumed")

	require.NoError(t, s.Cancel(digest, maker, maker))

	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		return s.FinalizeTx(tx, digest, maker)
	})
	assert.ErrorIs(t, err, ErrAlreadyTerminal)
}

func TestFinalizeTxRollsBackWithTransaction(t *testing.T) {
	s := newTestService(t)
	digest := digestOf("rollback")
	boom := errors.New("later settlement step failed")

	err := s.db.db.Transaction(func(tx *gorm.DB) error {
		if err := s.FinalizeTx(tx, digest, maker); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	terminal, err := s.IsTerminal(digest)
	require.NoError(t, err)
	assert.False(t, terminal, "rolled-back finalization must leave the order live")
}
