package io

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Memo caches deflection maps between runs. Maps are stored in "unit" form:
// the deflection of a surface density map in Msun/Mpc^2 on a grid measured
// in Mpc. Dividing by SigmaCrit * Xi0 gives the dimensionless deflection of
// any source plane.
type Memo struct {
	db *badger.DB
}

// OpenMemo opens the deflection cache in dir. An empty dir gives a cache
// which lives only in memory.
func OpenMemo(dir string) (*Memo, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open deflection memo: %w", err)
	}
	return &Memo{db: db}, nil
}

func (m *Memo) Close() error { return m.db.Close() }

// MemoKey returns the key for the deflection map of a halo. tag identifies
// the solver and the set of projected species.
func MemoKey(
	haloID int64, snap, cells int, fov, padFac float64, tag string,
) []byte {
	return []byte(fmt.Sprintf(
		"defl/%d/%d/%d/%.10g/%.6g/%s", haloID, snap, cells, fov, padFac, tag,
	))
}

// Get returns the cached deflection map for key. ok is false if there is
// no such map.
func (m *Memo) Get(key []byte) (ax, ay []float64, ok bool, err error) {
	err = m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			return nil
		} else if err != nil {
			return err
		}

		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		ax, ay, err = decodeDeflection(val)
		ok = err == nil
		return err
	})
	if err != nil {
		return nil, nil, false, fmt.Errorf("memo key %s: %w", key, err)
	}
	return ax, ay, ok, nil
}

// Put stores a deflection map under key.
func (m *Memo) Put(key []byte, ax, ay []float64) error {
	val, err := encodeDeflection(ax, ay)
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func encodeDeflection(ax, ay []float64) ([]byte, error) {
	if len(ax) != len(ay) {
		return nil, fmt.Errorf(
			"deflection components have lengths %d and %d", len(ax), len(ay),
		)
	}
	buf := &bytes.Buffer{}
	buf.Grow(4 + 16*len(ax))
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(ax))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, ax); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, ay); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeDeflection(val []byte) (ax, ay []float64, err error) {
	r := bytes.NewReader(val)
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, err
	}
	if len(val) != 4+16*int(n) {
		return nil, nil, fmt.Errorf(
			"memo entry has %d bytes, expected %d", len(val), 4+16*int(n),
		)
	}
	ax, ay = make([]float64, n), make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, ax); err != nil {
		return nil, nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, ay); err != nil {
		return nil, nil, err
	}
	return ax, ay, nil
}
