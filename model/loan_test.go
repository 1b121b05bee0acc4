package model

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to ItemStatus }{
		{ItemPending, ItemActive},
		{ItemPending, ItemRejected},
		{ItemActive, ItemOverdue},
		{ItemActive, ItemPendingReturn},
		{ItemActive, ItemReturned},
		{ItemActive, ItemLost},
		{ItemOverdue, ItemPendingReturn},
		{ItemOverdue, ItemReturned},
		{ItemOverdue, ItemLost},
		{ItemPendingReturn, ItemActive},
		{ItemPendingReturn, ItemOverdue},
		{ItemPendingReturn, ItemReturned},
		{ItemPendingReturn, ItemLost},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to ItemStatus }{
		{ItemPending, ItemOverdue},
		{ItemPending, ItemReturned},
		{ItemPending, ItemPendingReturn},
		{ItemActive, ItemPending},
		{ItemActive, ItemRejected},
		{ItemOverdue, ItemActive},
		{ItemOverdue, ItemRejected},
		{ItemReturned, ItemActive},
		{ItemRejected, ItemActive},
		{ItemLost, ItemReturned},
		{ItemReturned, ItemPendingReturn},
	}
	for _, tr := range denied {
		if CanTransition(tr.from, tr.to) {
			t.Errorf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []ItemStatus{ItemReturned, ItemRejected, ItemLost} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(itemTransitions[s]) != 0 {
			t.Errorf("%s must have no outgoing transitions", s)
		}
	}
	for _, s := range []ItemStatus{ItemPending, ItemActive, ItemOverdue, ItemPendingReturn} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
		if !s.Open() {
			t.Errorf("%s should be open", s)
		}
	}
}

func TestCardTypeLimits(t *testing.T) {
	if got := CardStandard.LoanPeriodDays(); got != 45 {
		t.Fatalf("standard loan period = %d, want 45", got)
	}
	if got := CardVIP.LoanPeriodDays(); got != 60 {
		t.Fatalf("vip loan period = %d, want 60", got)
	}
	if got := CardStandard.BorrowLimit(); got != 5 {
		t.Fatalf("standard limit = %d, want 5", got)
	}
	if got := CardVIP.BorrowLimit(); got != 8 {
		t.Fatalf("vip limit = %d, want 8", got)
	}
	if CardStandard.CanBorrowRare() {
		t.Fatal("standard card must not borrow rare titles")
	}
	if !CardVIP.CanBorrowRare() {
		t.Fatal("vip card should borrow rare titles")
	}
}
