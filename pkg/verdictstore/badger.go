package verdictstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/RyanBlaney/antispoof-pipeline/pkg/logging"
	"github.com/RyanBlaney/antispoof-pipeline/pkg/verdict"
)

// Badger is a Store backed by BadgerDB.
type Badger struct {
	db         *badger.DB
	collection string
}

// BadgerOptions configures the Badger store.
type BadgerOptions struct {
	// Dir holds the data files. Required unless InMemory is set.
	Dir string
	// InMemory keeps everything in memory.
	InMemory   bool
	Collection string
	Logger     logging.Logger
}

// NewBadger opens a Badger-backed store.
func NewBadger(opts BadgerOptions) (*Badger, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("verdictstore: BadgerOptions.Dir is required for on-disk mode")
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger.WithFields(logging.Fields{"component": "badger"})})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db, collection: opts.Collection}, nil
}

func (b *Badger) Upsert(_ context.Context, key string, rec verdict.Record) error {
	doc, err := newDocument(key, rec)
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(b.collection, doc.Key), data)
	})
}

func (b *Badger) Get(_ context.Context, key string) (Document, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(b.collection, key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(val)
}

func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(encodeKey(b.collection, key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

func (b *Badger) List(_ context.Context) iter.Seq2[Document, error] {
	prefix := collectionPrefix(b.collection)
	return func(yield func(Document, error) bool) {
		err := b.db.View(func(txn *badger.Txn) error {
			iterOpts := badger.DefaultIteratorOptions
			iterOpts.Prefix = prefix
			it := txn.NewIterator(iterOpts)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				if !bytes.HasPrefix(item.Key(), prefix) {
					break
				}
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				doc, err := decodeDocument(val)
				if err != nil {
					return err
				}
				if !yield(doc, nil) {
					return nil
				}
			}
			return nil
		})
		if err != nil {
			yield(Document{}, err)
		}
	}
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes badger's printf logging into the structured logger.
// Info and debug chatter is dropped.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(nil, "badger error", logging.Fields{"detail": fmt.Sprintf(f, v...)})
}

func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn("badger warning", logging.Fields{"detail": fmt.Sprintf(f, v...)})
}

func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

var _ Store = (*Badger)(nil)
