// Package boltstore implements mq.SessionStore on top of a bbolt file,
// giving a persistent session that survives process restarts without
// external infrastructure.
//
// Session state is split across three buckets: pending publishes,
// subscriptions, and received QoS 2 packet ids. Each value is stored as
// JSON, keyed by the packet id (big-endian uint16) or topic filter.
package boltstore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	mq "github.com/nprobe/mqttcore"
)

var (
	pendingBucket      = []byte("pending_publishes")
	subscriptionBucket = []byte("subscriptions")
	qos2Bucket         = []byte("qos2_received")
)

// Store implements mq.SessionStore using a bbolt database file.
type Store struct {
	db *bbolt.DB
}

var _ mq.SessionStore = (*Store)(nil)

// Open creates or opens a bbolt-backed session store at path, creating
// the required buckets if they don't already exist.
//
// Example:
//
//	store, err := boltstore.Open("/var/lib/mqtt/sensor-1.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	client, err := mq.Dial("tcp://localhost:1883",
//	    mq.WithClientID("sensor-1"),
//	    mq.WithCleanSession(false),
//	    mq.WithSessionStore(store))
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{pendingBucket, subscriptionBucket, qos2Bucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func packetIDKey(packetID uint16) []byte {
	key := make([]byte, 2)
	binary.BigEndian.PutUint16(key, packetID)
	return key
}

// SavePendingPublish stores an unacknowledged QoS 1 publish.
func (s *Store) SavePendingPublish(packetID uint16, pub *mq.PersistedPublish) error {
	data, err := json.Marshal(pub)
	if err != nil {
		return fmt.Errorf("boltstore: marshal publish: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(packetIDKey(packetID), data)
	})
}

// DeletePendingPublish removes a publish once its PUBACK arrives.
func (s *Store) DeletePendingPublish(packetID uint16) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(packetIDKey(packetID))
	})
}

// LoadPendingPublishes retrieves all pending publishes on startup.
func (s *Store) LoadPendingPublishes() (map[uint16]*mq.PersistedPublish, error) {
	result := make(map[uint16]*mq.PersistedPublish)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			if len(k) != 2 {
				return nil
			}
			var pub mq.PersistedPublish
			if err := json.Unmarshal(v, &pub); err != nil {
				return nil // skip corrupted entries
			}
			result[binary.BigEndian.Uint16(k)] = &pub
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load pending publishes: %w", err)
	}

	return result, nil
}

// ClearPendingPublishes removes all pending publishes.
func (s *Store) ClearPendingPublishes() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(pendingBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(pendingBucket)
		return err
	})
}

// SaveSubscription stores an active subscription, keyed by topic filter.
func (s *Store) SaveSubscription(topic string, sub *mq.SubscriptionInfo) error {
	data, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("boltstore: marshal subscription: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(subscriptionBucket).Put([]byte(topic), data)
	})
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(topic string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(subscriptionBucket).Delete([]byte(topic))
	})
}

// LoadSubscriptions retrieves all subscriptions on startup.
func (s *Store) LoadSubscriptions() (map[string]*mq.SubscriptionInfo, error) {
	result := make(map[string]*mq.SubscriptionInfo)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(subscriptionBucket).ForEach(func(k, v []byte) error {
			var sub mq.SubscriptionInfo
			if err := json.Unmarshal(v, &sub); err != nil {
				return nil
			}
			result[string(k)] = &sub
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load subscriptions: %w", err)
	}

	return result, nil
}

// SaveReceivedQoS2 marks a QoS 2 packet id as received.
func (s *Store) SaveReceivedQoS2(packetID uint16) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(qos2Bucket).Put(packetIDKey(packetID), []byte{1})
	})
}

// DeleteReceivedQoS2 removes a QoS 2 packet id once its PUBCOMP is sent.
func (s *Store) DeleteReceivedQoS2(packetID uint16) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(qos2Bucket).Delete(packetIDKey(packetID))
	})
}

// LoadReceivedQoS2 retrieves all received QoS 2 packet ids on startup.
func (s *Store) LoadReceivedQoS2() (map[uint16]struct{}, error) {
	result := make(map[uint16]struct{})

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(qos2Bucket).ForEach(func(k, v []byte) error {
			if len(k) != 2 {
				return nil
			}
			result[binary.BigEndian.Uint16(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("boltstore: load received QoS2 ids: %w", err)
	}

	return result, nil
}

// ClearReceivedQoS2 removes all received QoS 2 packet ids.
func (s *Store) ClearReceivedQoS2() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(qos2Bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(qos2Bucket)
		return err
	})
}

// Clear removes all session state. Called when CleanSession=true.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{pendingBucket, subscriptionBucket, qos2Bucket} {
			if err := tx.DeleteBucket(b); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(b); err != nil {
				return err
			}
		}
		return nil
	})
}
