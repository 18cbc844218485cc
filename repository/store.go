package repository

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/tracklore/tracklore/id"
)

var (
	bucketResources = []byte("resources")
	bucketKeywords  = []byte("keywords")
	bucketKeysByTag = []byte("keysByTag")
	bucketEmptyKeys = []byte("emptyKeys")
)

// Store is the persisted KeywordIndex + ResourceStore the overlay node
// publishes into and searches. All methods are safe for concurrent use;
// bbolt serializes writers internally and this package adds no extra
// locking on top of it.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt-backed repository at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("repository: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketResources, bucketKeywords, bucketKeysByTag, bucketEmptyKeys} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("repository: init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close disposes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func loadResource(tx *bolt.Tx, resourceID id.ID) (*ResourceRecord, bool, error) {
	raw := tx.Bucket(bucketResources).Get(resourceID[:])
	if raw == nil {
		return nil, false, nil
	}
	var rec ResourceRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func saveResource(tx *bolt.Tx, rec *ResourceRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketResources).Put(rec.ID[:], raw)
}

func loadKeywordIDs(tx *bolt.Tx, resourceID id.ID) ([]string, error) {
	raw := tx.Bucket(bucketKeysByTag).Get(resourceID[:])
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func saveKeywordIDs(tx *bolt.Tx, resourceID id.ID, keywordIDs []string) error {
	raw, err := json.Marshal(keywordIDs)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketKeysByTag).Put(resourceID[:], raw)
}

func loadKeywordEntry(tx *bolt.Tx, keywordID string) (*KeywordEntry, bool, error) {
	raw := tx.Bucket(bucketKeywords).Get([]byte(keywordID))
	if raw == nil {
		return nil, false, nil
	}
	var entry KeywordEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func saveKeywordEntry(tx *bolt.Tx, entry *KeywordEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketKeywords).Put([]byte(entry.ID), raw)
}

// markEmptyIfNeeded keeps the emptyKeys secondary index current so the
// garbage collector need not scan every keyword entry.
func markEmptyIfNeeded(tx *bolt.Tx, entry *KeywordEntry) error {
	if entry.Empty() {
		return tx.Bucket(bucketEmptyKeys).Put([]byte(entry.ID), []byte{1})
	}
	return tx.Bucket(bucketEmptyKeys).Delete([]byte(entry.ID))
}

// StoreResource records that peerEndpoint serves the resource identified
// by tag.TagHash, publishing tag's metadata into the keyword index the
// first time the resource is seen.
func (s *Store) StoreResource(tag CompleteTag, peerEndpoint string) error {
	return s.StoreResourceAt(tag, peerEndpoint, time.Now())
}

// StoreResourceAt is StoreResource with an explicit publication time, used
// by the STORE_DATA handler which carries the originator's publication
// time rather than "now".
func (s *Store) StoreResourceAt(tag CompleteTag, peerEndpoint string, publishedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, exists, err := loadResource(tx, tag.TagHash)
		if err != nil {
			return err
		}

		if exists {
			if rec.ContainsURL(peerEndpoint) {
				return nil
			}
			rec.URLs[peerEndpoint] = URLEntry{Endpoint: peerEndpoint, PublicationTime: publishedAt}
			return saveResource(tx, rec)
		}

		rec = &ResourceRecord{
			ID:  tag.TagHash,
			Tag: tag,
			URLs: map[string]URLEntry{
				peerEndpoint: {Endpoint: peerEndpoint, PublicationTime: publishedAt},
			},
		}
		if err := saveResource(tx, rec); err != nil {
			return err
		}

		return indexKeywords(tx, rec)
	})
}

func indexKeywords(tx *bolt.Tx, rec *ResourceRecord) error {
	keywordIDs := generateKeywords(rec.Tag)
	resourceIDHex := rec.ID.String()

	for _, kwID := range keywordIDs {
		entry, exists, err := loadKeywordEntry(tx, kwID)
		if err != nil {
			return err
		}
		if !exists {
			entry = newKeywordEntry(kwID)
		}
		entry.Tags[resourceIDHex] = true
		if err := saveKeywordEntry(tx, entry); err != nil {
			return err
		}
		if err := markEmptyIfNeeded(tx, entry); err != nil {
			return err
		}
	}

	return saveKeywordIDs(tx, rec.ID, keywordIDs)
}

// ContainsURL reports whether endpoint is recorded against resourceID.
func (s *Store) ContainsURL(resourceID id.ID, endpoint string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, exists, err := loadResource(tx, resourceID)
		if err != nil || !exists {
			return err
		}
		found = rec.ContainsURL(endpoint)
		return nil
	})
	return found, err
}

// GetPublicationTime returns the publication time recorded for endpoint
// against resourceID, if any.
func (s *Store) GetPublicationTime(resourceID id.ID, endpoint string) (time.Time, bool, error) {
	var (
		t  time.Time
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		rec, exists, err := loadResource(tx, resourceID)
		if err != nil || !exists {
			return err
		}
		t, ok = rec.PublicationTime(endpoint)
		return nil
	})
	return t, ok, err
}

// RefreshResource updates the recorded publication time for an existing
// (resourceID, endpoint) pair without altering the set of peers.
func (s *Store) RefreshResource(resourceID id.ID, endpoint string, newPublication time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		rec, exists, err := loadResource(tx, resourceID)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}
		entry, ok := rec.URLs[endpoint]
		if !ok {
			return nil
		}
		entry.PublicationTime = newPublication
		rec.URLs[endpoint] = entry
		return saveResource(tx, rec)
	})
}

// SearchFor implements the protocol's substring-containment keyword
// search: split the query on whitespace, lower-case each token, select
// every KeywordEntry whose id (with the "keyword/" prefix stripped)
// contains any query token as a substring, union their Tags, and load the
// referenced resource records.
func (s *Store) SearchFor(query string) ([]ResourceRecord, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	matched := make(map[string]struct{})

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKeywords).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			stripped := string(k)[len(keywordPrefix):]
			var match bool
			for _, tok := range tokens {
				if tok != "" && strings.Contains(stripped, tok) {
					match = true
					break
				}
			}
			if !match {
				continue
			}
			var entry KeywordEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			for resourceIDHex := range entry.Tags {
				matched[resourceIDHex] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []ResourceRecord
	err = s.db.View(func(tx *bolt.Tx) error {
		for resourceIDHex := range matched {
			resourceID, parseErr := id.FromHex(resourceIDHex)
			if parseErr != nil {
				logrus.WithFields(logrus.Fields{
					"function": "SearchFor",
					"resource": resourceIDHex,
				}).Warn("skipping unparseable resource id in keyword index")
				continue
			}
			rec, exists, loadErr := loadResource(tx, resourceID)
			if loadErr != nil {
				return loadErr
			}
			if exists {
				out = append(out, *rec)
			}
		}
		return nil
	})
	return out, err
}

// DeleteTag removes a resource and prunes it from every keyword that
// references it. A keyword left with no tags is not deleted here — it is
// marked in emptyKeys and reclaimed later by GCEmptyKeywords, so a resource
// republished moments later can reuse the same keyword entry without
// re-creating it.
func (s *Store) DeleteTag(resourceID id.ID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		keywordIDs, err := loadKeywordIDs(tx, resourceID)
		if err != nil {
			return err
		}

		resourceIDHex := resourceID.String()
		for _, kwID := range keywordIDs {
			entry, exists, err := loadKeywordEntry(tx, kwID)
			if err != nil || !exists {
				continue
			}
			delete(entry.Tags, resourceIDHex)
			if err := saveKeywordEntry(tx, entry); err != nil {
				return err
			}
			if err := markEmptyIfNeeded(tx, entry); err != nil {
				return err
			}
		}

		if err := tx.Bucket(bucketKeysByTag).Delete(resourceID[:]); err != nil {
			return err
		}
		return tx.Bucket(bucketResources).Delete(resourceID[:])
	})
}

// GCEmptyKeywords reclaims keyword entries that have had every tag removed.
// It consults emptyKeys rather than scanning the keywords bucket, so the
// sweep's cost is proportional to the number of prunable entries, not the
// total number of indexed keywords. An entry is re-checked against the live
// keywords bucket before deletion in case a new tag was indexed under it
// since it was marked empty.
func (s *Store) GCEmptyKeywords() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var candidates [][]byte
		c := tx.Bucket(bucketEmptyKeys).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			candidates = append(candidates, append([]byte(nil), k...))
		}

		for _, kwID := range candidates {
			entry, exists, err := loadKeywordEntry(tx, string(kwID))
			if err != nil {
				return err
			}
			if !exists || entry.Empty() {
				if err := tx.Bucket(bucketKeywords).Delete(kwID); err != nil {
					return err
				}
			}
			if err := tx.Bucket(bucketEmptyKeys).Delete(kwID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Expire removes endpoints whose publication predates now-maxAge;
// resources left with no endpoints are deleted outright via DeleteTag,
// which also removes them from their keyword entries (entries left empty
// are reclaimed later by GCEmptyKeywords).
func (s *Store) Expire(maxAge time.Duration) error {
	now := time.Now()
	var toDelete []id.ID

	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketResources).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec ResourceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			changed := false
			for endpoint, entry := range rec.URLs {
				if now.Sub(entry.PublicationTime) > maxAge {
					delete(rec.URLs, endpoint)
					changed = true
				}
			}

			if len(rec.URLs) == 0 {
				toDelete = append(toDelete, rec.ID)
				continue
			}
			if changed {
				if err := saveResource(tx, &rec); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, resourceID := range toDelete {
		if err := s.DeleteTag(resourceID); err != nil {
			return err
		}
	}
	return nil
}

// GetAllElements returns every stored resource record, used by the
// maintenance loop's periodic republication sweep.
func (s *Store) GetAllElements() ([]ResourceRecord, error) {
	var out []ResourceRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResources).ForEach(func(_, v []byte) error {
			var rec ResourceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}

// Get loads a single resource record by id.
func (s *Store) Get(resourceID id.ID) (*ResourceRecord, bool, error) {
	var (
		rec    *ResourceRecord
		exists bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, exists, err = loadResource(tx, resourceID)
		return err
	})
	return rec, exists, err
}
