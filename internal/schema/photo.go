package schema

import (
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/MikeSquared-Agency/ihbar/internal/store"
)

// Photo is an image attached to a report. Its content lives in a File item
// and a blob, both addressed by the BLAKE3 hash of the bytes.
type Photo struct {
	ID   uuid.UUID
	Hash string
	File *File
}

// File is the raw blob record behind a Photo.
type File struct {
	ID       uuid.UUID
	Hash     string
	MimeType string
	Size     int
}

// ContentHash returns the hex BLAKE3-256 digest of data.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PhotoFromBytes builds the Photo and File items for an image plus the blob
// carrying its bytes.
func PhotoFromBytes(data []byte) (*Photo, store.Blob) {
	hash := ContentHash(data)
	file := &File{
		ID:       uuid.New(),
		Hash:     hash,
		MimeType: http.DetectContentType(data),
		Size:     len(data),
	}
	photo := &Photo{ID: uuid.New(), Hash: hash, File: file}
	return photo, store.Blob{Hash: hash, Data: data}
}

func (p *Photo) Item() store.Item {
	return store.Item{ID: p.ID, Type: TypePhoto, Properties: map[string]any{
		"contentHash": p.Hash,
	}}
}

func (f *File) Item() store.Item {
	return store.Item{ID: f.ID, Type: TypeFile, Properties: map[string]any{
		"contentHash": f.Hash,
		"mimeType":    f.MimeType,
		"size":        f.Size,
	}}
}

// Edges links the photo to its file.
func (p *Photo) Edges() []store.Edge {
	return []store.Edge{{Source: p.ID, Target: p.File.ID, Name: EdgeFile}}
}
