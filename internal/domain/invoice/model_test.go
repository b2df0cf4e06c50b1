package invoice

import (
	"testing"
	"time"
)

func TestValidTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusDraft, StatusSent},
		{StatusDraft, StatusCancelled},
		{StatusSent, StatusPaid},
		{StatusSent, StatusCancelled},
	}
	for _, tr := range allowed {
		if !ValidTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to Status }{
		{StatusDraft, StatusPaid},
		{StatusSent, StatusDraft},
		{StatusPaid, StatusCancelled},
		{StatusCancelled, StatusDraft},
		{StatusPaid, StatusSent},
	}
	for _, tr := range denied {
		if ValidTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be denied", tr.from, tr.to)
		}
	}
}

func TestOverdue(t *testing.T) {
	now := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	due := now.Add(-24 * time.Hour)

	inv := Invoice{Status: StatusSent, DueDate: &due}
	if !inv.Overdue(now) {
		t.Fatal("expected past-due sent invoice to be overdue")
	}

	inv.Status = StatusPaid
	if inv.Overdue(now) {
		t.Fatal("paid invoice must not be overdue")
	}

	inv.Status = StatusCancelled
	if inv.Overdue(now) {
		t.Fatal("cancelled invoice must not be overdue")
	}

	future := now.Add(24 * time.Hour)
	inv = Invoice{Status: StatusSent, DueDate: &future}
	if inv.Overdue(now) {
		t.Fatal("invoice before due date must not be overdue")
	}

	inv = Invoice{Status: StatusSent}
	if inv.Overdue(now) {
		t.Fatal("invoice without due date must not be overdue")
	}
}
