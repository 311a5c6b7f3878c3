package kvstore

// Key is the type for keys in a KeyValueStore
type Key []byte

// Value is the type for values in a KeyValueStore
type Value []byte

// Keys is a slice of keys
type Keys []Key

// Limit bounds how many keys List returns; 0 means no limit
type Limit int

// KeyValueStore is an interface describing small key/value stores like boltdb
type KeyValueStore interface {
	// Put stores a value under the given key, returning an error on failure
	Put(Key, Value) error

	// Get returns the value stored under the given key; a nil value with a
	// nil error means the key is absent
	Get(Key) (Value, error)

	// Delete removes the key; absent keys are not an error
	Delete(Key) error

	// List returns keys with the given prefix in ascending order, bounded by limit
	List(prefix Key, limit Limit) (Keys, error)

	// ReverseList returns keys with the given prefix in descending order, bounded by limit
	ReverseList(prefix Key, limit Limit) (Keys, error)

	// Close closes the store
	Close() error
}

// IsZero returns true if the value is its zero value
func (v Value) IsZero() bool {
	return len(v) == 0
}

// String implements the Stringer interface
func (k Key) String() string {
	return string(k)
}
