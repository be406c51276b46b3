package activity

import "testing"

func TestBuildApplyCompletedEventCarriesCounts(t *testing.T) {
	meta := map[string]any{"tool": "texture-max-size"}
	input := OperationEventInput{
		ActorID:   " actor ",
		Plan:      " texture-max-size ",
		SessionID: "session-1",
		Counts:    Counts{Changed: 10, Skipped: 2, Failed: 1},
		Metadata:  meta,
	}

	event := BuildApplyCompletedEvent(input)

	if event.Verb != VerbApplyCompleted {
		t.Fatalf("expected verb %s got %s", VerbApplyCompleted, event.Verb)
	}
	if event.ObjectType != ObjectPlan || event.ObjectID != "texture-max-size" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" || event.Plan != "texture-max-size" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Metadata["changed"] != 10 || event.Metadata["skipped"] != 2 || event.Metadata["failed"] != 1 {
		t.Fatalf("unexpected counts: %+v", event.Metadata)
	}
	if _, ok := event.Metadata["not_applicable"]; ok {
		t.Fatalf("zero not_applicable should be omitted: %+v", event.Metadata)
	}
	if event.Metadata["tool"] != "texture-max-size" {
		t.Fatalf("expected custom metadata, got %+v", event.Metadata)
	}
	event.Metadata["tool"] = "changed"
	if meta["tool"] != "texture-max-size" {
		t.Fatalf("expected input metadata untouched")
	}
}

func TestBuildBaselineCapturedEventPrefersSnapshotID(t *testing.T) {
	event := BuildBaselineCapturedEvent(OperationEventInput{
		Plan:       "lod-override",
		SnapshotID: "snap-1",
		Entries:    4,
	})
	if event.ObjectType != ObjectBaseline || event.ObjectID != "snap-1" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.Metadata["entries"] != 4 || event.Metadata["snapshot_id"] != "snap-1" {
		t.Fatalf("unexpected metadata: %+v", event.Metadata)
	}
}

func TestBuildBackupClearedEventFallsBackToObjectType(t *testing.T) {
	event := BuildBackupClearedEvent(OperationEventInput{Entries: 3})
	if event.ObjectID != ObjectBackup {
		t.Fatalf("expected fallback object ID %q, got %q", ObjectBackup, event.ObjectID)
	}
	if event.Metadata["entries"] != 3 {
		t.Fatalf("expected entries metadata, got %+v", event.Metadata)
	}
}

func TestBuildScanCompletedEventIncludesFingerprint(t *testing.T) {
	event := BuildScanCompletedEvent(OperationEventInput{
		Plan:        "normal-map-size",
		Fingerprint: "abc",
		Counts:      Counts{NotApplicable: 3},
		Canceled:    true,
	})
	if event.Metadata["fingerprint"] != "abc" || event.Metadata["not_applicable"] != 3 || event.Metadata["canceled"] != true {
		t.Fatalf("unexpected metadata: %+v", event.Metadata)
	}
}
