package state

import (
	"errors"
	"math/big"
	"testing"

	"trustescrow/native/common"
	"trustescrow/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestTxOverlayReadsOwnWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	tx := mgr.Begin()
	if err := tx.KVPut([]byte("k"), uint64(7)); err != nil {
		t.Fatalf("put: %v", err)
	}
	var got uint64
	ok, err := tx.KVGet([]byte("k"), &got)
	if err != nil || !ok || got != 7 {
		t.Fatalf("overlay read: ok=%v got=%d err=%v", ok, got, err)
	}
	if db.Len() != 0 {
		t.Fatalf("staged write leaked into store")
	}
	other := mgr.Begin()
	if ok, _ := other.KVGet([]byte("k"), &got); ok {
		t.Fatalf("uncommitted write visible to another transaction")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ok, _ := other.KVGet([]byte("k"), &got); !ok || got != 7 {
		t.Fatalf("committed write not visible")
	}
}

func TestTxDiscardDropsWrites(t *testing.T) {
	mgr, db := newTestManager(t)
	sentinel := errors.New("boom")
	err := mgr.Update(func(tx *Tx) error {
		if _, err := tx.Deposit([20]byte{1}, big.NewInt(10)); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("discarded writes reached the store")
	}
}

func TestTxDeleteAndClose(t *testing.T) {
	mgr, _ := newTestManager(t)
	if err := mgr.Update(func(tx *Tx) error { return tx.KVPut([]byte("gone"), "v") }); err != nil {
		t.Fatalf("seed: %v", err)
	}
	tx := mgr.Begin()
	if err := tx.KVDelete([]byte("gone")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := tx.KVGet([]byte("gone"), nil); ok {
		t.Fatalf("deleted key still visible in overlay")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.KVPut([]byte("again"), "v"); !errors.Is(err, ErrTxClosed) {
		t.Fatalf("expected closed tx, got %v", err)
	}
	_ = mgr.View(func(tx *Tx) error {
		if ok, _ := tx.KVGet([]byte("gone"), nil); ok {
			t.Fatalf("delete not committed")
		}
		return nil
	})
}

func TestAccountsDeposit(t *testing.T) {
	mgr, _ := newTestManager(t)
	addr := [20]byte{0xAA}
	err := mgr.Update(func(tx *Tx) error {
		if _, err := tx.Deposit(addr, big.NewInt(500)); err != nil {
			return err
		}
		_, err := tx.Deposit(addr, big.NewInt(25))
		return err
	})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	_ = mgr.View(func(tx *Tx) error {
		acc, err := tx.GetAccount(addr)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if acc.Available.Cmp(big.NewInt(525)) != 0 || acc.Locked.Sign() != 0 {
			t.Fatalf("unexpected balances %s/%s", acc.Available, acc.Locked)
		}
		return nil
	})
	if err := mgr.Update(func(tx *Tx) error {
		_, err := tx.Deposit(addr, big.NewInt(0))
		return err
	}); !errors.Is(err, ErrInvalidDeposit) {
		t.Fatalf("expected invalid deposit, got %v", err)
	}
	if err := mgr.Update(func(tx *Tx) error {
		_, err := tx.GetAccount([20]byte{})
		return err
	}); !errors.Is(err, common.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestLockFundsThroughTx(t *testing.T) {
	mgr, _ := newTestManager(t)
	owner, recipient := [20]byte{1}, [20]byte{2}
	err := mgr.Update(func(tx *Tx) error {
		if _, err := tx.Deposit(owner, big.NewInt(100)); err != nil {
			return err
		}
		if err := common.LockFunds(tx, owner, big.NewInt(60)); err != nil {
			return err
		}
		return common.PayOut(tx, owner, recipient, big.NewInt(45))
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = mgr.View(func(tx *Tx) error {
		from, _ := tx.GetAccount(owner)
		to, _ := tx.GetAccount(recipient)
		if from.Available.Int64() != 40 || from.Locked.Int64() != 15 || to.Available.Int64() != 45 {
			t.Fatalf("unexpected balances owner=%s/%s recipient=%s", from.Available, from.Locked, to.Available)
		}
		return nil
	})
	err = mgr.Update(func(tx *Tx) error { return common.LockFunds(tx, owner, big.NewInt(41)) })
	if !errors.Is(err, common.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}
