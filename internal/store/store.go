// internal/store/store.go
//
// Package store implements the platform's document store: four collections of
// open-map documents persisted as one JSON file. The store imposes no schema;
// shape validation belongs to the lobby tier. Every mutation serializes
// behind one mutex and rewrites the whole backing file (best-effort
// atomicity is a known limitation of the format).
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Collection names. The set is fixed; unknown names error on every operation.
const (
	CollectionPlayer    = "Player"
	CollectionDeveloper = "Developer"
	CollectionGame      = "Game"
	CollectionRoom      = "Room"
)

var collections = []string{
	CollectionPlayer,
	CollectionDeveloper,
	CollectionGame,
	CollectionRoom,
}

// Document is an open-map record. The store never inspects fields beyond id.
type Document = map[string]any

// Store is the in-memory document tree plus its backing file.
type Store struct {
	mu   sync.Mutex
	path string
	log  *logrus.Logger
	db   map[string]map[string]Document
}

// Open loads the store from path. A missing, empty, or unreadable file yields
// a fresh empty database. Room is always reset on load: rooms are ephemeral
// across restarts.
func Open(path string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Store{path: path, log: log}
	s.db = s.loadFile()
	if s.db == nil {
		s.db = make(map[string]map[string]Document)
		log.Info("Database file not found or empty. Initializing new database.")
	} else {
		s.db[CollectionRoom] = make(map[string]Document)
		log.Infof("Database loaded successfully from %s.", path)
	}
	for _, name := range collections {
		if s.db[name] == nil {
			s.db[name] = make(map[string]Document)
		}
	}
	log.Info("Database initialized with collections: Player, Developer, Game, Room")
	return s
}

func (s *Store) loadFile() map[string]map[string]Document {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("Error loading database from file: %v", err)
		}
		return nil
	}
	var db map[string]map[string]Document
	if err := json.Unmarshal(raw, &db); err != nil {
		s.log.Warnf("Error loading database from file: %v", err)
		return nil
	}
	return db
}

// saveLocked rewrites the backing file. Caller holds s.mu.
func (s *Store) saveLocked() error {
	raw, err := json.MarshalIndent(s.db, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, raw, 0o644)
}

func (s *Store) collection(name string) (map[string]Document, error) {
	coll, ok := s.db[name]
	if !ok {
		return nil, fmt.Errorf("Collection '%s' not found.", name)
	}
	return coll, nil
}

func notFound(collection, id string) error {
	return fmt.Errorf("%s with ID %s not found.", collection, id)
}

// Create inserts a new document. A fresh UUID id is generated first and data
// is merged over it, so a caller-supplied id wins (upload-game relies on
// this to brand its folder with the game id). Player and Developer rows are
// stamped with lastLoginAt and online=false in addition to createdAt.
func (s *Store) Create(collection string, data Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	doc := Document{"id": uuid.NewString()}
	for k, v := range data {
		doc[k] = v
	}
	if id, ok := doc["id"].(string); !ok || id == "" {
		doc["id"] = uuid.NewString()
	}

	now := time.Now().Unix()
	switch collection {
	case CollectionPlayer, CollectionDeveloper:
		doc["createdAt"] = now
		doc["lastLoginAt"] = now
		doc["online"] = false
	case CollectionGame, CollectionRoom:
		doc["createdAt"] = now
	}

	id := doc["id"].(string)
	prev, existed := coll[id]
	coll[id] = doc

	if err := s.saveLocked(); err != nil {
		if existed {
			coll[id] = prev
		} else {
			delete(coll, id)
		}
		return nil, fmt.Errorf("Database create error: %v", err)
	}
	return doc, nil
}

// Read returns the document with the given id.
func (s *Store) Read(collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	return doc, nil
}

// Update shallow-merges data into the existing document. An id key inside
// data is dropped; the document's identity never changes.
func (s *Store) Update(collection, id string, data Document) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	merged := make(Document, len(doc)+len(data))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range data {
		if k == "id" {
			continue
		}
		merged[k] = v
	}
	coll[id] = merged
	if err := s.saveLocked(); err != nil {
		coll[id] = doc
		return nil, fmt.Errorf("Database update error: %v", err)
	}
	return merged, nil
}

// Delete removes the document and returns the {id, deleted:true} receipt.
func (s *Store) Delete(collection, id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	doc, ok := coll[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	delete(coll, id)
	if err := s.saveLocked(); err != nil {
		coll[id] = doc
		return nil, fmt.Errorf("Database delete error: %v", err)
	}
	return Document{"id": id, "deleted": true}, nil
}

// Query returns every document whose fields equal all filter keys. An empty
// filter returns the whole collection. Result order is unspecified.
func (s *Store) Query(collection string, filter Document) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	results := make([]Document, 0, len(coll))
	for _, doc := range coll {
		if matches(doc, filter) {
			results = append(results, doc)
		}
	}
	return results, nil
}

func matches(doc, filter Document) bool {
	for k, want := range filter {
		if !reflect.DeepEqual(doc[k], want) {
			return false
		}
	}
	return true
}
