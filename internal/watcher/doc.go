// Package watcher follows changes to the documents folder.
//
// fsnotify events are filtered to ingestible documents, debounced so that
// an upload written in several chunks yields one event, and delivered in
// batches. A Syncer turns those batches into catalog updates: new and
// modified documents become pending until the next ingestion run.
//
// Usage:
//
//	w, err := watcher.New(watcher.Options{Allowed: cfg.IsAllowedExtension})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go func() { _ = w.Start(ctx, cfg.DocumentsDir()) }()
//	syncer.Run(ctx, w.Events())
package watcher
