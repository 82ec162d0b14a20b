// Package sync keeps the local store, the Notion workspace and the
// spreadsheet mirror in step on every task mutation.
//
// Overview
//
// A task lives in three places. The local SQLite store holds the canonical
// record and issues task ids. The Notion database issues page ids and is the
// store users edit by hand. The .xlsx mirror is a read-only projection keyed
// by page id. None of them is transactional with the others, so the
// Coordinator applies each mutation in a fixed order and reports exactly
// which stores were touched when a step fails:
//
//	Create:  Notion page  →  local record  →  mirror row
//	Update:  local record →  Notion patch  →  mirror row
//	Delete:  Notion archive → mirror row   →  local record
//
// Create goes remote first because the local record needs the page id.
// Update goes local first so the user's change is never lost, even when the
// remote is down.
//
// Failure Policy
//
// Every failure is an *Error whose Kind says how far the operation got:
//
//   - ErrRemoteWriteFailed / ErrRemoteDeleteFailed: nothing changed
//   - ErrLocalWriteFailed on create: the Notion page is orphaned
//   - ErrRemoteSyncFailed: the local record is newer than Notion
//   - ErrLocalDeleteFailed: the page is archived but the record remains
//
// The last three are divergences. They are logged with a DIVERGENCE prefix,
// stored in the Journal when one is configured and broadcast to the
// Notifier. An update to a task with no Notion page fails with ErrUnlinked
// as its cause but is not journaled. Mirror failures never fail an
// operation; they are logged as warnings and repaired by RebuildMirror,
// which reads the local store under the workbook lock.
//
// Reconcile
//
// Reconcile replays open journal entries: orphaned pages are archived,
// stale pages are patched from the local record and half-finished deletes
// are completed. Entries that still fail stay open. Entries that can never
// succeed are closed and counted as skipped. Each closed entry is passed to
// Notifier.DivergenceResolved.
//
// Usage
//
//	database, err := db.Open(".tasksync/tasks.db")
//	if err != nil {
//	    return err
//	}
//	defer database.Close()
//
//	client, err := notion.NewClient(notion.Config{Token: token, DatabaseID: dbID})
//	if err != nil {
//	    return err
//	}
//	m, err := mirror.New(mirror.Config{Path: "tasks.xlsx"})
//	if err != nil {
//	    return err
//	}
//
//	coord, err := sync.New(sync.Config{
//	    Local:   database,
//	    Remote:  client,
//	    Mirror:  m,
//	    Journal: database,
//	})
//	if err != nil {
//	    return err
//	}
//
//	t, err := coord.Create(ctx, task.CreateInput{
//	    Title: "Write spec", Status: "NOT_STARTED", Priority: "HIGH",
//	})
//
// Concurrency
//
// The Coordinator holds no per-task lock. Mirror writes are serialized per
// workbook path; concurrent updates to the same task resolve last writer
// wins in each store independently.
package sync
