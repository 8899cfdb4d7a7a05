// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package store persists the packed AC state word in a badger database.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/acmitm/internal/metrics"
)

var stateKey = []byte("ac_state")

// Options configures a Store.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *logrus.Entry
}

// Store is the persistence boundary for the AC engine.
type Store struct {
	db  *badger.DB
	log *logrus.Entry
}

// badgerLogger routes badger's chatter through logrus, demoting its info
// output to debug.
type badgerLogger struct {
	log *logrus.Entry
}

func (l badgerLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.log.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{}) { l.log.Tracef(format, args...) }

// Open opens or creates the database.
func Open(opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "store")

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Path == "" {
			return nil, errors.New("store path is required")
		}
		if err := os.MkdirAll(opts.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", opts.Path, err)
		}
		bopts = badger.DefaultOptions(opts.Path).WithSyncWrites(true)
	}
	bopts = bopts.
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{log: log})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &Store{db: db, log: log}, nil
}

// Save writes the state word.
func (s *Store) Save(word uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], word)

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, buf[:])
	})
	if err != nil {
		metrics.RecordPersistFailure()
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// Load returns the stored state word, or 0 when nothing was saved yet.
func (s *Store) Load() (uint64, error) {
	var word uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("stored state has %d bytes, want 8", len(val))
			}
			word = binary.BigEndian.Uint64(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.log.Debug("No persisted state")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}
	return word, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
