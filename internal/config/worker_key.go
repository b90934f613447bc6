package config

type WorkerKeyStruct struct {
	PersistDraftsQueue      string
	PersistPasteEventsQueue string
	PersistXPQueue          string
}

var WorkerKey = &WorkerKeyStruct{
	PersistDraftsQueue:      "persist_drafts_queue",
	PersistPasteEventsQueue: "persist_paste_events_queue",
	PersistXPQueue:          "persist_xp_queue",
}
