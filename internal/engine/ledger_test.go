package engine

import (
	"testing"

	"github.com/xtrntr/crash/internal/models"
)

func TestLedger_SingleWagerPerUser(t *testing.T) {
	l := NewLedger()

	if l.HasWager(1) {
		t.Error("empty ledger reports a wager")
	}

	l.AddWager(models.Wager{RoundNumber: 1, UserID: 1, USDAmount: 10})
	l.AddWager(models.Wager{RoundNumber: 1, UserID: 2, USDAmount: 20})

	if !l.HasWager(1) || !l.HasWager(2) {
		t.Error("recorded wagers not found")
	}
	if l.WagerCount() != 2 {
		t.Errorf("expected 2 wagers, got %d", l.WagerCount())
	}

	list := l.WagerList()
	if len(list) != 2 || list[0].UserID != 1 || list[1].UserID != 2 {
		t.Error("wager list not in placement order")
	}
}

func TestLedger_CashoutTracking(t *testing.T) {
	l := NewLedger()
	l.AddWager(models.Wager{RoundNumber: 1, UserID: 1})

	if l.HasCashedOut(1) {
		t.Error("user reported cashed out before cashing out")
	}
	l.MarkCashedOut(1)
	if !l.HasCashedOut(1) {
		t.Error("cashed-out mark not recorded")
	}
}

func TestLedger_ResetClearsEverything(t *testing.T) {
	l := NewLedger()
	l.AddWager(models.Wager{RoundNumber: 1, UserID: 1})
	l.MarkCashedOut(1)

	l.Reset()

	if l.HasWager(1) || l.HasCashedOut(1) || l.WagerCount() != 0 {
		t.Error("reset left state behind")
	}
	if len(l.WagerList()) != 0 {
		t.Error("reset left wager list behind")
	}
}
