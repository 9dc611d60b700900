package domain

import "testing"

func TestNextFollowsHappyPath(t *testing.T) {
	steps := []struct {
		from  Status
		event Event
		role  Role
		want  Status
	}{
		{StatusRequested, EventClaim, RoleRepairer, StatusPendingQuote},
		{StatusPendingQuote, EventSubmitQuote, RoleRepairer, StatusQuoted},
		{StatusQuoted, EventAcceptQuote, RoleCustomer, StatusAccepted},
		{StatusAccepted, EventIssueCode, RoleRepairer, StatusPendingOTP},
		{StatusPendingOTP, EventVerifyCode, RoleCustomer, StatusPendingPayment},
		{StatusPendingPayment, EventPaymentSettled, RoleSystem, StatusCustomerPaid},
		{StatusCustomerPaid, EventComplete, RoleSystem, StatusCompleted},
	}

	for _, step := range steps {
		next, ok, allowed := Next(step.from, step.event, step.role)
		if !ok || !allowed {
			t.Fatalf("expected %s/%s to be legal for %s (ok=%v allowed=%v)", step.from, step.event, step.role, ok, allowed)
		}
		if next != step.want {
			t.Fatalf("expected %s + %s = %s, got %s", step.from, step.event, step.want, next)
		}
	}
}

func TestNextRejectsIllegalEvents(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
	}{
		{StatusRequested, EventSubmitQuote},
		{StatusRequested, EventVerifyCode},
		{StatusPendingQuote, EventAcceptQuote},
		{StatusAccepted, EventSubmitQuote},
		{StatusAccepted, EventCancel},
		{StatusPendingOTP, EventWithdraw},
		{StatusPendingPayment, EventVerifyCode},
		{StatusCompleted, EventClaim},
		{StatusCancelled, EventClaim},
		{StatusClosedRejected, EventSubmitQuote},
		{StatusRejected, EventAcceptQuote},
	}

	for _, c := range cases {
		if _, ok, _ := Next(c.from, c.event, RoleCustomer); ok {
			t.Errorf("expected %s/%s to be illegal", c.from, c.event)
		}
		if Legal(c.from, c.event) {
			t.Errorf("expected Legal(%s, %s) to be false", c.from, c.event)
		}
	}
}

func TestNextEnforcesRoles(t *testing.T) {
	cases := []struct {
		from  Status
		event Event
		role  Role
	}{
		{StatusRequested, EventClaim, RoleCustomer},
		{StatusRequested, EventCancel, RoleRepairer},
		{StatusQuoted, EventAcceptQuote, RoleRepairer},
		{StatusQuoted, EventRejectQuote, RoleRepairer},
		{StatusPendingOTP, EventVerifyCode, RoleRepairer},
		{StatusAccepted, EventIssueCode, RoleCustomer},
		{StatusPendingPayment, EventPaymentSettled, RoleCustomer},
		{StatusPendingPayment, EventPaymentSettled, RoleRepairer},
		{StatusRejected, EventCloseRejected, RoleCustomer},
	}

	for _, c := range cases {
		_, ok, allowed := Next(c.from, c.event, c.role)
		if !ok {
			t.Fatalf("expected %s/%s to be legal for some role", c.from, c.event)
		}
		if allowed {
			t.Errorf("expected role %s to be refused for %s/%s", c.role, c.from, c.event)
		}
	}
}

func TestQuoteRevisionStaysQuoted(t *testing.T) {
	next, ok, allowed := Next(StatusQuoted, EventSubmitQuote, RoleRepairer)
	if !ok || !allowed {
		t.Fatal("expected quote revision to be legal for the repairer")
	}
	if next != StatusQuoted {
		t.Fatalf("expected revision to stay in quoted, got %s", next)
	}
}

func TestWithdrawReopensRequest(t *testing.T) {
	for _, from := range []Status{StatusPendingQuote, StatusQuoted, StatusAccepted} {
		next, ok, allowed := Next(from, EventWithdraw, RoleRepairer)
		if !ok || !allowed {
			t.Fatalf("expected withdraw from %s to be legal for the repairer", from)
		}
		if next != StatusRequested {
			t.Fatalf("expected withdraw from %s to reopen the request, got %s", from, next)
		}
	}
}

func TestCancelOnlyBeforeAcceptance(t *testing.T) {
	for _, from := range []Status{StatusRequested, StatusPendingQuote, StatusQuoted} {
		if _, ok, _ := Next(from, EventCancel, RoleCustomer); !ok {
			t.Errorf("expected cancel from %s to be legal", from)
		}
	}
	for _, from := range []Status{StatusAccepted, StatusPendingOTP, StatusPendingPayment, StatusCustomerPaid, StatusRejected} {
		if _, ok, _ := Next(from, EventCancel, RoleCustomer); ok {
			t.Errorf("expected cancel from %s to be illegal", from)
		}
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	events := []Event{
		EventClaim, EventSubmitQuote, EventAcceptQuote, EventRejectQuote,
		EventCloseRejected, EventIssueCode, EventVerifyCode,
		EventPaymentSettled, EventComplete, EventCancel, EventWithdraw,
	}
	for _, status := range []Status{StatusCompleted, StatusClosedRejected, StatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
		for _, event := range events {
			if Legal(status, event) {
				t.Errorf("expected no transition out of %s, found %s", status, event)
			}
		}
	}
}

func TestRankNeverDecreasesExceptOnWithdraw(t *testing.T) {
	for from, byEvent := range transitions {
		for event, r := range byEvent {
			if event == EventWithdraw {
				continue
			}
			if r.next.Rank() < from.Rank() {
				t.Errorf("transition %s + %s = %s decreases rank", from, event, r.next)
			}
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	if !Status("requested").Valid() {
		t.Error("expected requested to be a valid status")
	}
	if Status("shipped").Valid() {
		t.Error("expected unknown status to be invalid")
	}
	if StatusPendingQuote.HasQuote() {
		t.Error("expected pending_quote to carry no quote")
	}
	if !StatusRejected.HasQuote() {
		t.Error("expected rejected to keep the quote")
	}
	if !StatusPendingOTP.AllowsCompletionCode() {
		t.Error("expected pending_otp to allow a completion code")
	}
	if StatusQuoted.AllowsCompletionCode() {
		t.Error("expected quoted to forbid a completion code")
	}
	if !StatusAccepted.CountsTowardCapacity() || !StatusPendingPayment.CountsTowardCapacity() {
		t.Error("expected accepted and pending_payment to occupy capacity")
	}
	if StatusQuoted.CountsTowardCapacity() || StatusCustomerPaid.CountsTowardCapacity() {
		t.Error("expected quoted and customer_paid to be outside capacity")
	}
}
