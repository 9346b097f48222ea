// Package badgerstore is the embedded persistence collaborator for the
// delivery core. Anything behind the service-layer store interfaces can
// replace it; the key scheme here only exists so one node can run
// standalone and serve history.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/webitel/chat-delivery-service/internal/domain/model"
	"github.com/webitel/chat-delivery-service/internal/service"
)

// Message keys are "msg:{room_id}:{timestamp_padded}:{token}":
//  1. The 19-digit zero padding makes lexicographic order chronological.
//  2. The token suffix disambiguates two messages landing on the same
//     nanosecond.
//
// A secondary "tok:{token}" index carries the primary key for reply-token
// resolution.
const (
	msgKeyFmt  = "msg:%d:%019d:%s"
	msgPrefix  = "msg:%d:"
	tokKeyFmt  = "tok:%s"
	roomKeyFmt = "room:%d"
	roleKeyFmt = "role:%d:%d"
	idSeqKey   = "seq:message-id"
)

type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *slog.Logger
}

func Open(dir string, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", dir, err)
	}
	seq, err := db.GetSequence([]byte(idSeqKey), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badgerstore: id sequence: %w", err)
	}
	return &Store{db: db, seq: seq, logger: logger}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		s.logger.Warn("badgerstore: release sequence", "error", err)
	}
	return s.db.Close()
}

// Save assigns the storage id and token (when missing) and persists the
// message together with its token index entry. Tokens are immutable once
// assigned.
func (s *Store) Save(ctx context.Context, msg *model.Message) (*model.Message, error) {
	if msg.ID == 0 {
		next, err := s.seq.Next()
		if err != nil {
			return nil, fmt.Errorf("badgerstore: next id: %w", err)
		}
		msg.ID = int64(next) + 1 // sequence starts at 0
	}
	if msg.Token == uuid.Nil {
		msg.Token = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	key := fmt.Sprintf(msgKeyFmt, msg.RoomID, msg.CreatedAt.UnixNano(), msg.Token)
	val, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: encode message: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), val); err != nil {
			return err
		}
		return txn.Set([]byte(fmt.Sprintf(tokKeyFmt, msg.Token)), []byte(key))
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: save message: %w", err)
	}
	return msg, nil
}

func (s *Store) FindByToken(ctx context.Context, token uuid.UUID) (*model.Message, error) {
	var msg *model.Message
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf(tokKeyFmt, token)))
		if err != nil {
			return err
		}
		var primary []byte
		if err := item.Value(func(v []byte) error {
			primary = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(primary)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			msg = new(model.Message)
			return json.Unmarshal(v, msg)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, service.ErrMessageNotFound
		}
		return nil, fmt.Errorf("badgerstore: find by token: %w", err)
	}
	return msg, nil
}

// ListRecent walks the room prefix backwards, collects up to limit raw
// values and returns them oldest first.
func (s *Store) ListRecent(ctx context.Context, roomID int64, limit int) ([]*model.Message, error) {
	var raw [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf(msgPrefix, roomID))
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the newest possible key for this room.
		seek := append(append([]byte(nil), prefix...), []byte("9999999999999999999")...)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(raw) == limit {
				break
			}
			var val []byte
			if err := it.Item().Value(func(v []byte) error {
				val = append([]byte(nil), v...)
				return nil
			}); err != nil {
				return err
			}
			raw = append(raw, val)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list recent: %w", err)
	}

	msgs := make([]*model.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // reverse back to oldest-first
		msg := new(model.Message)
		if err := json.Unmarshal(raw[i], msg); err != nil {
			return nil, fmt.Errorf("badgerstore: decode message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (s *Store) FindRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	var room *model.Room
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf(roomKeyFmt, roomID)))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			room = new(model.Room)
			return json.Unmarshal(v, room)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, service.ErrRoomNotFound
		}
		return nil, fmt.Errorf("badgerstore: find room: %w", err)
	}
	return room, nil
}

func (s *Store) SaveRoom(ctx context.Context, room *model.Room) error {
	val, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("badgerstore: encode room: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fmt.Sprintf(roomKeyFmt, room.ID)), val)
	})
}

// CurrentRole returns "" for users without a stored role.
func (s *Store) CurrentRole(ctx context.Context, roomID, userID int64) (string, error) {
	var role string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf(roleKeyFmt, roomID, userID)))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			role = string(v)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("badgerstore: current role: %w", err)
	}
	return role, nil
}

func (s *Store) SetRole(ctx context.Context, roomID, userID int64, role string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fmt.Sprintf(roleKeyFmt, roomID, userID)), []byte(role))
	})
}
