package activity

import (
	"strings"
	"time"
)

// Event verbs emitted by the engine.
const (
	VerbScanCompleted     = "ssar.scan.completed"
	VerbApplyCompleted    = "ssar.apply.completed"
	VerbRevertCompleted   = "ssar.revert.completed"
	VerbRestoreCompleted  = "ssar.restore.completed"
	VerbBaselineCaptured  = "ssar.baseline.captured"
	VerbBaselineForgotten = "ssar.baseline.forgotten"
	VerbBackupCleared     = "ssar.backup.cleared"
)

// Object types carried by engine events.
const (
	ObjectPlan     = "ssar.plan"
	ObjectBaseline = "ssar.baseline"
	ObjectBackup   = "ssar.backup"
)

// Counts mirrors the end-of-operation summary.
type Counts struct {
	Changed       int
	Skipped       int
	Failed        int
	Missing       int
	NotApplicable int
}

// OperationEventInput describes the common fields of engine events.
type OperationEventInput struct {
	ActorID     string
	UserID      string
	TenantID    string
	Channel     string
	SessionID   string
	Plan        string
	SnapshotID  string
	Fingerprint string
	Entries     int
	Counts      Counts
	Canceled    bool
	Metadata    map[string]any
	OccurredAt  time.Time
}

// BuildScanCompletedEvent reports a finished scan.
func BuildScanCompletedEvent(input OperationEventInput) Event {
	event := buildOperationEvent(VerbScanCompleted, ObjectPlan, input)
	if input.Fingerprint != "" {
		event.Metadata["fingerprint"] = input.Fingerprint
	}
	return event
}

// BuildApplyCompletedEvent reports a finished apply.
func BuildApplyCompletedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbApplyCompleted, ObjectPlan, input)
}

// BuildRevertCompletedEvent reports a finished session revert.
func BuildRevertCompletedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbRevertCompleted, ObjectPlan, input)
}

// BuildRestoreCompletedEvent reports a finished durable restore.
func BuildRestoreCompletedEvent(input OperationEventInput) Event {
	return buildOperationEvent(VerbRestoreCompleted, ObjectPlan, input)
}

// BuildBaselineCapturedEvent reports a newly captured session baseline.
func BuildBaselineCapturedEvent(input OperationEventInput) Event {
	return buildBaselineEvent(VerbBaselineCaptured, input)
}

// BuildBaselineForgottenEvent reports a dropped session baseline.
func BuildBaselineForgottenEvent(input OperationEventInput) Event {
	return buildBaselineEvent(VerbBaselineForgotten, input)
}

// BuildBackupClearedEvent reports cleared durable backups for a plan.
func BuildBackupClearedEvent(input OperationEventInput) Event {
	event := buildOperationEvent(VerbBackupCleared, ObjectBackup, input)
	event.Metadata["entries"] = input.Entries
	return event
}

func buildBaselineEvent(verb string, input OperationEventInput) Event {
	event := buildOperationEvent(verb, ObjectBaseline, input)
	if id := strings.TrimSpace(input.SnapshotID); id != "" {
		event.ObjectID = id
	}
	event.Metadata["entries"] = input.Entries
	return event
}

func buildOperationEvent(verb, objectType string, input OperationEventInput) Event {
	metadata := make(map[string]any, len(input.Metadata)+8)
	for key, value := range input.Metadata {
		metadata[key] = value
	}
	metadata["changed"] = input.Counts.Changed
	metadata["skipped"] = input.Counts.Skipped
	metadata["failed"] = input.Counts.Failed
	metadata["missing"] = input.Counts.Missing
	if input.Counts.NotApplicable > 0 {
		metadata["not_applicable"] = input.Counts.NotApplicable
	}
	if input.Canceled {
		metadata["canceled"] = true
	}
	if input.SnapshotID != "" {
		metadata["snapshot_id"] = input.SnapshotID
	}

	plan := strings.TrimSpace(input.Plan)
	objectID := plan
	if objectID == "" {
		objectID = strings.TrimSpace(input.SnapshotID)
	}
	if objectID == "" {
		objectID = objectType
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Plan:       plan,
		SessionID:  strings.TrimSpace(input.SessionID),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}
