package config

type WorkerKeyStruct struct {
	PersistDraftsQueue string
	AuditEventsQueue   string
}

var WorkerKey = &WorkerKeyStruct{
	PersistDraftsQueue: "persist_drafts_queue",
	AuditEventsQueue:   "audit_events_queue",
}
