// Package downloader runs claimed jobs through their lifecycle: metadata
// probe, engine download, optional trim, artifact delivery, and terminal
// finalization with push-event ordering guarantees.
package downloader
