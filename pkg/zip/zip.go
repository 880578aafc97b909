// Package zip bundles generated artifacts into a single downloadable
// archive.
package zip

import (
	"archive/zip"
	"bytes"
)

// Entry is one file inside the archive.
type Entry struct {
	Filename string
	Data     []byte
}

// Archive writes the entries into an in-memory zip. A nil return means the
// archive could not be assembled.
func Archive(entries []Entry) []byte {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, entry := range entries {
		w, err := zw.Create(entry.Filename)
		if err != nil {
			continue
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil
		}
	}
	if err := zw.Close(); err != nil {
		return nil
	}
	return buf.Bytes()
}
