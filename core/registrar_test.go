package core_test

import (
	"context"
	"testing"

	"github.com/goliatone/go-inbox/core"
	memstore "github.com/goliatone/go-inbox/store/memory"
)

func TestRegistrar_UpdateAppliesChanges(t *testing.T) {
	f := newFixture(t)
	contact := f.putContact(t, core.Contact{Name: "A", PhoneNumber: "+" + testPhone})
	f.bind(t, contact, testPhone)
	resolver := core.NewIdentifierResolver(f.store)
	registrar := core.NewContactInboxRegistrar(f.store, resolver, f.logger)

	classification, err := resolver.Classify(context.Background(), f.inbox, lidEvent("m1", testLID, testPhone))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	reg, err := registrar.Apply(context.Background(), classification)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if reg.Outcome != core.ClassificationUpdate {
		t.Fatalf("expected UPDATE outcome, got %s", reg.Outcome)
	}
	if reg.ContactInbox.SourceID != testLID {
		t.Fatalf("expected source id %q, got %q", testLID, reg.ContactInbox.SourceID)
	}
	if reg.Contact.Identifier != testLID+"@lid" || reg.Contact.PhoneNumber != "+"+testPhone {
		t.Fatalf("unexpected contact identity: %#v", reg.Contact)
	}
}

func TestRegistrar_UpdateRaceDowngradesWithoutWrites(t *testing.T) {
	f := newFixture(t)
	a := f.putContact(t, core.Contact{Name: "A", PhoneNumber: "+" + testPhone})
	aBinding := f.bind(t, a, testPhone)
	resolver := core.NewIdentifierResolver(f.store)
	registrar := core.NewContactInboxRegistrar(f.store, resolver, f.logger)

	classification, err := resolver.Classify(context.Background(), f.inbox, lidEvent("m1", testLID, testPhone))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if classification.Kind != core.ClassificationUpdate {
		t.Fatalf("expected UPDATE, got %s", classification.Kind)
	}

	// A concurrent delivery claims the identifier between classify and apply.
	f.putContact(t, core.Contact{Name: "Racer", Identifier: testLID + "@lid"})

	reg, err := registrar.Apply(context.Background(), classification)
	if err != nil {
		t.Fatalf("expected race to be absorbed, got %v", err)
	}
	if !reg.Downgraded || reg.Outcome != core.ClassificationConflict {
		t.Fatalf("expected downgraded conflict outcome, got %#v", reg)
	}
	if reg.Contact.ID != a.ID {
		t.Fatalf("expected attribution to A, got %q", reg.Contact.ID)
	}
	stored := f.contact(t, a.ID)
	if stored.Identifier != "" {
		t.Fatalf("expected identifier untouched, got %q", stored.Identifier)
	}
	if got := f.binding(t, aBinding.ID).SourceID; got != testPhone {
		t.Fatalf("expected source id untouched, got %q", got)
	}
	if !f.logger.has("info", "identity conflict, event attributed to existing contact") {
		t.Fatalf("expected conflict info log")
	}
}

func TestRegistrar_NewRaceReclassifiesOntoWinner(t *testing.T) {
	f := newFixture(t)
	resolver := core.NewIdentifierResolver(f.store)
	registrar := core.NewContactInboxRegistrar(f.store, resolver, f.logger)

	classification, err := resolver.Classify(context.Background(), f.inbox, lidEvent("m1", testLID, testPhone))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}

	var winner core.Contact
	raced := false
	f.store.SetWriteHook(func(_ context.Context, op string) {
		if op != memstore.OpCreateContactInbox || raced {
			return
		}
		raced = true
		winner = f.putContact(t, core.Contact{Name: "Winner", Identifier: testLID + "@lid", PhoneNumber: "+" + testPhone})
		f.bind(t, winner, testLID)
	})

	reg, err := registrar.Apply(context.Background(), classification)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if reg.Contact.ID != winner.ID {
		t.Fatalf("expected winner contact %q, got %q", winner.ID, reg.Contact.ID)
	}
	if !reg.Downgraded || reg.Outcome != core.ClassificationNoop {
		t.Fatalf("expected downgraded NOOP, got %#v", reg)
	}
	contacts, bindings, _, _ := f.store.Counts()
	if contacts != 1 || bindings != 1 {
		t.Fatalf("expected one contact and binding, got %d/%d", contacts, bindings)
	}
}

func TestRegistrar_ConflictAndNoopDoNotWrite(t *testing.T) {
	f := newFixture(t)
	contact := f.putContact(t, core.Contact{Name: "A"})
	binding := f.bind(t, contact, testLID)
	registrar := core.NewContactInboxRegistrar(f.store, nil, f.logger)

	for _, kind := range []core.ClassificationKind{core.ClassificationConflict, core.ClassificationNoop} {
		reg, err := registrar.Apply(context.Background(), core.Classification{
			Kind:         kind,
			Inbox:        f.inbox,
			Contact:      contact,
			ContactInbox: binding,
		})
		if err != nil {
			t.Fatalf("apply %s: %v", kind, err)
		}
		if reg.Contact.ID != contact.ID || reg.ContactInbox.ID != binding.ID || reg.Outcome != kind {
			t.Fatalf("unexpected registration for %s: %#v", kind, reg)
		}
	}
	contacts, bindings, _, _ := f.store.Counts()
	if contacts != 1 || bindings != 1 {
		t.Fatalf("expected no writes, got %d contacts %d bindings", contacts, bindings)
	}
}
