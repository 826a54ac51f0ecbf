package file

import "sync"

// Record describes one fully uploaded file.
type Record struct {
	FileID   string
	Path     string
	Filename string
	Size     int64
}

// Index maps file ids to records. Entries are written once, after the
// last byte of an upload is persisted, so a resolvable id always
// points at complete content.
type Index struct {
	mu    sync.Mutex
	files map[string]Record
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{files: make(map[string]Record)}
}

// Put inserts or replaces the record for its file id.
func (i *Index) Put(rec Record) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.files[rec.FileID] = rec
}

// Get looks up a record by file id.
func (i *Index) Get(fileID string) (Record, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	rec, ok := i.files[fileID]
	return rec, ok
}

// Len returns the number of indexed files.
func (i *Index) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.files)
}
