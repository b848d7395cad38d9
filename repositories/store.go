package repositories

import (
	"chat-core/errors"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// maxTxnRetries bounds how often a conflicting transaction is replayed
// before the caller gets errors.ErrConflict.
const maxTxnRetries = 8

// Key layout. Every record is a JSON document; indexes hold ids or keys.
//
//	chat:{chatID}                          -> Chat
//	chatpair:{userA}:{userB}               -> chatID of the one on one chat (A < B)
//	member:{userID}:{chatID}               -> empty
//	msg:{chatID}:{unixNano padded}:{msgID} -> Message
//	msgid:{msgID}                          -> msg key
//	user:id:{userID}                       -> User
//	user:email:{email}                     -> userID
//	user:name:{username}                   -> userID
func chatKey(id string) []byte { return []byte("chat:" + id) }

func pairKey(a, b string) []byte { return []byte(fmt.Sprintf("chatpair:%s:%s", a, b)) }

func memberKey(userID, chatID string) []byte {
	return []byte(fmt.Sprintf("member:%s:%s", userID, chatID))
}

func memberPrefix(userID string) []byte { return []byte(fmt.Sprintf("member:%s:", userID)) }

func messagePrefix(chatID string) []byte { return []byte(fmt.Sprintf("msg:%s:", chatID)) }

func messageIndexKey(id string) []byte { return []byte("msgid:" + id) }

func userKey(id string) []byte { return []byte("user:id:" + id) }

func userEmailKey(email string) []byte { return []byte("user:email:" + email) }

func userNameKey(username string) []byte { return []byte("user:name:" + username) }

// update runs fn in a read-write transaction and replays it when badger
// detects a conflicting concurrent commit. fn must be idempotent.
func update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err := db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return errors.ErrConflict
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return txn.Set(key, data)
}

func getString(txn *badger.Txn, key []byte) (string, error) {
	item, err := txn.Get(key)
	if err != nil {
		return "", err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return "", err
	}
	return string(val), nil
}

// notFound translates a missing key into the domain sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sentinel
	}
	return err
}
