// Package verdictstore keeps the latest verdict per processed object in a
// key-value store. Keys are scoped by a collection name; writing a key
// replaces its document wholesale.
package verdictstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrNotFound is returned when no verdict exists for a key.
var ErrNotFound = errors.New("verdictstore: not found")

// Document is the stored value for one object.
type Document struct {
	Key       string         `json:"key" msgpack:"key"`
	Verdict   verdict.Record `json:"verdict" msgpack:"verdict"`
	UpdatedAt time.Time      `json:"updated_at" msgpack:"updated_at"`
}

// Store persists verdict documents.
type Store interface {
	// Upsert replaces the verdict stored under key.
	Upsert(ctx context.Context, key string, rec verdict.Record) error
	// Get returns the document for key or ErrNotFound.
	Get(ctx context.Context, key string) (Document, error)
	// Delete removes key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
	// List iterates over every document in key order.
	List(ctx context.Context) iter.Seq2[Document, error]
	Close() error
}

// keySep separates the collection from the object key; object names may
// contain any printable character.
const keySep = 0x00

func encodeKey(collection, key string) []byte {
	b := make([]byte, 0, len(collection)+1+len(key))
	b = append(b, collection...)
	b = append(b, keySep)
	return append(b, key...)
}

func collectionPrefix(collection string) []byte {
	return append([]byte(collection), keySep)
}

func encodeDocument(doc Document) ([]byte, error) {
	data, err := msgpack.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("verdictstore: encode %s: %w", doc.Key, err)
	}
	return data, nil
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("verdictstore: decode: %w", err)
	}
	return doc, nil
}

// newDocument stamps rec for storage under key.
func newDocument(key string, rec verdict.Record) (Document, error) {
	if key == "" {
		return Document{}, errors.New("verdictstore: empty key")
	}
	return Document{Key: key, Verdict: rec, UpdatedAt: now().UTC()}, nil
}

var now = time.Now
