// Package storage writes result streams to newline-delimited JSON files.
//
// A Writer either appends every record to <prefix>.json or, with a
// results-per-file limit, rolls to <prefix>_<UTC timestamp>.json every N
// records. Each file is written under a temporary name and renamed when it
// is complete, so a crashed run never leaves a half-written .json file.
//
// Usage:
//
//	w, err := storage.NewWriter(storage.NameFromQuery(query), 1000, storage.WithDir("out"))
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	for msg, err := range storage.Tee(s.All(ctx), w) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(msg.Data["id"])
//	}
package storage
