// Package ledger persists lending reserves and positions in a key-value
// database as RLP records.
package ledger

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"credo/native/lending"
	"credo/storage"
)

var (
	statePrefix    = []byte("lending/")
	reservePrefix  = []byte("lending/reserve/")
	positionPrefix = []byte("lending/position/")
)

type storedReserve struct {
	Asset               string
	TotalSuppliedScaled []byte
	TotalBorrowedScaled []byte
	LiquidityIndex      []byte
	BorrowIndex         []byte
	LastUpdate          uint64
	AccruedToTreasury   []byte
}

type storedPosition struct {
	User             string
	Asset            string
	CollateralScaled []byte
	DebtScaled       []byte
}

// Store implements lending.Store on top of a storage.Database.
type Store struct {
	db storage.Database
}

// New wraps db. The caller retains ownership of db and closes it.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

func ReserveKey(asset string) []byte {
	return append(append([]byte(nil), reservePrefix...), lending.NormalizeAsset(asset)...)
}

func PositionKey(user, asset string) []byte {
	key := append([]byte(nil), positionPrefix...)
	key = append(key, user...)
	key = append(key, '/')
	return append(key, lending.NormalizeAsset(asset)...)
}

func encodeInt(v *uint256.Int) []byte {
	if v == nil {
		return nil
	}
	return v.Bytes()
}

func decodeInt(b []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(b)
}

// Load reads every reserve and position record.
func (s *Store) Load(ctx context.Context) (*lending.Snapshot, error) {
	out := &lending.Snapshot{}
	var decodeErr error
	err := s.db.Iterate(reservePrefix, func(key, value []byte) bool {
		if decodeErr = ctx.Err(); decodeErr != nil {
			return false
		}
		var rec storedReserve
		if decodeErr = rlp.DecodeBytes(value, &rec); decodeErr != nil {
			decodeErr = fmt.Errorf("ledger: decode %s: %w", key, decodeErr)
			return false
		}
		out.Reserves = append(out.Reserves, &lending.Reserve{
			Asset:               rec.Asset,
			TotalSuppliedScaled: decodeInt(rec.TotalSuppliedScaled),
			TotalBorrowedScaled: decodeInt(rec.TotalBorrowedScaled),
			LiquidityIndex:      decodeInt(rec.LiquidityIndex),
			BorrowIndex:         decodeInt(rec.BorrowIndex),
			LastUpdate:          rec.LastUpdate,
			AccruedToTreasury:   decodeInt(rec.AccruedToTreasury),
		})
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, err
	}
	err = s.db.Iterate(positionPrefix, func(key, value []byte) bool {
		if decodeErr = ctx.Err(); decodeErr != nil {
			return false
		}
		var rec storedPosition
		if decodeErr = rlp.DecodeBytes(value, &rec); decodeErr != nil {
			decodeErr = fmt.Errorf("ledger: decode %s: %w", key, decodeErr)
			return false
		}
		out.Positions = append(out.Positions, &lending.Position{
			User:             rec.User,
			Asset:            rec.Asset,
			CollateralScaled: decodeInt(rec.CollateralScaled),
			DebtScaled:       decodeInt(rec.DebtScaled),
		})
		return true
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Commit writes the changed records in a single atomic batch.
func (s *Store) Commit(ctx context.Context, changes *lending.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}
	batch := storage.NewBatch()
	for _, r := range changes.Reserves {
		encoded, err := rlp.EncodeToBytes(storedReserve{
			Asset:               r.Asset,
			TotalSuppliedScaled: encodeInt(r.TotalSuppliedScaled),
			TotalBorrowedScaled: encodeInt(r.TotalBorrowedScaled),
			LiquidityIndex:      encodeInt(r.LiquidityIndex),
			BorrowIndex:         encodeInt(r.BorrowIndex),
			LastUpdate:          r.LastUpdate,
			AccruedToTreasury:   encodeInt(r.AccruedToTreasury),
		})
		if err != nil {
			return fmt.Errorf("ledger: encode reserve %s: %w", r.Asset, err)
		}
		batch.Put(ReserveKey(r.Asset), encoded)
	}
	for _, p := range changes.Positions {
		encoded, err := rlp.EncodeToBytes(storedPosition{
			User:             p.User,
			Asset:            p.Asset,
			CollateralScaled: encodeInt(p.CollateralScaled),
			DebtScaled:       encodeInt(p.DebtScaled),
		})
		if err != nil {
			return fmt.Errorf("ledger: encode position %s/%s: %w", p.User, p.Asset, err)
		}
		batch.Put(PositionKey(p.User, p.Asset), encoded)
	}
	return s.db.Write(batch)
}

// Digest hashes every ledger record in key order. Two stores holding the same
// state produce the same digest.
func (s *Store) Digest() ([32]byte, error) {
	hasher := blake3.New(32, nil)
	var lenBuf [4]byte
	err := s.db.Iterate(statePrefix, func(key, value []byte) bool {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(key)))
		hasher.Write(lenBuf[:])
		hasher.Write(key)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
		hasher.Write(lenBuf[:])
		hasher.Write(value)
		return true
	})
	var out [32]byte
	if err != nil {
		return out, err
	}
	copy(out[:], hasher.Sum(nil))
	return out, nil
}
