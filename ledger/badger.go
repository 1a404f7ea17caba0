package ledger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/obscura-mint/interfaces"
	"github.com/vmihailenco/msgpack/v4"
)

const (
	keyContract    = "OBSCURA:CONTRACT"
	keyOwner       = "OBSCURA:OWNER"
	keySequence    = "OBSCURA:SEQUENCE"
	prefixSeries   = "OBSCURA:SERIES:"
	prefixBalance  = "OBSCURA:BALANCE:"
	prefixHandle   = "OBSCURA:HANDLE:"
	prefixEvent    = "OBSCURA:EVENT:"
	gcInterval     = 5 * time.Minute
	gcDiscardRatio = 0.5
)

type seriesRecord struct {
	ID        uint64
	Name      string
	MaxSupply uint32
	Minted    uint32
	Creator   []byte
}

type handleRecord struct {
	Handle []byte
	SetBy  []byte
}

type eventRecord struct {
	Type          string
	Seq           uint64
	Block         uint64
	TxHash        []byte
	SeriesID      uint64
	Creator       []byte
	Minter        []byte
	PreviousOwner []byte
	NewOwner      []byte
	Name          string
	MaxSupply     uint32
	Amount        uint32
}

// BadgerStore persists ledger state in a badger key-value database.
// Every changeset is written in a single badger transaction.
type BadgerStore struct {
	db   *badger.DB
	log  *slog.Logger
	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// OpenBadger opens (or creates) the database at path. An empty path opens an
// in-memory database, which is what tests use.
func OpenBadger(path string, log *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(&badgerLogger{log: log})
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	bs := &BadgerStore{
		db:   db,
		log:  log,
		stop: make(chan struct{}),
	}

	if path != "" {
		bs.wg.Add(1)
		go bs.runGC()
	}

	return bs, nil
}

func (bs *BadgerStore) runGC() {
	defer bs.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-bs.stop:
			return
		case <-ticker.C:
			lsm, vlog := bs.db.Size()
			bs.log.Debug("Badger size", "lsm", lsm, "vlog", vlog)
			if lsm > 1024*1024*8 || vlog > 1024*1024*32 {
				err := bs.db.RunValueLogGC(gcDiscardRatio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					bs.log.Warn("Badger value log GC failed", "err", err)
				}
			}
		}
	}
}

func (bs *BadgerStore) Close() error {
	var err error
	bs.once.Do(func() {
		close(bs.stop)
		bs.wg.Wait()
		err = bs.db.Close()
	})
	return err
}

func (bs *BadgerStore) Commit(ctx context.Context, cs *Changeset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return bs.db.Update(func(txn *badger.Txn) error {
		if cs.Contract != nil {
			if err := txn.Set([]byte(keyContract), cs.Contract.Bytes()); err != nil {
				return err
			}
		}

		if cs.Owner != nil {
			if err := txn.Set([]byte(keyOwner), cs.Owner.Bytes()); err != nil {
				return err
			}
		}

		if cs.Block > 0 {
			if err := txn.Set([]byte(keySequence), uint64Bytes(cs.Block)); err != nil {
				return err
			}
		}

		for _, s := range cs.Series {
			val, err := msgpack.Marshal(newSeriesRecord(s))
			if err != nil {
				return err
			}
			if err := txn.Set(seriesKey(s.ID), val); err != nil {
				return err
			}
		}

		for _, b := range cs.Balances {
			if err := txn.Set(balanceKeyBytes(b.Account, b.SeriesID), uint64Bytes(b.Amount)); err != nil {
				return err
			}
		}

		for _, h := range cs.Handles {
			val, err := msgpack.Marshal(&handleRecord{Handle: h.Handle[:], SetBy: h.SetBy.Bytes()})
			if err != nil {
				return err
			}
			if err := txn.Set(handleKey(h.SeriesID), val); err != nil {
				return err
			}
		}

		for _, ev := range cs.Events {
			val, err := msgpack.Marshal(newEventRecord(ev))
			if err != nil {
				return err
			}
			if err := txn.Set(eventKey(ev.Seq), val); err != nil {
				return err
			}
		}

		return nil
	})
}

func (bs *BadgerStore) Load(ctx context.Context) (*Changeset, error) {
	var cs *Changeset

	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyOwner))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}

		ownerBytes, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		owner := common.BytesToAddress(ownerBytes)
		cs = &Changeset{Owner: &owner}

		item, err = txn.Get([]byte(keyContract))
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			contract := common.BytesToAddress(val)
			cs.Contract = &contract
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		item, err = txn.Get([]byte(keySequence))
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			cs.Block = binary.BigEndian.Uint64(val)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		err = iteratePrefix(txn, prefixSeries, func(key, val []byte) error {
			var rec seriesRecord
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return err
			}
			cs.Series = append(cs.Series, rec.series())
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load series: %w", err)
		}

		err = iteratePrefix(txn, prefixBalance, func(key, val []byte) error {
			suffix := key[len(prefixBalance):]
			if len(suffix) != common.AddressLength+8 {
				return fmt.Errorf("malformed balance key %x", key)
			}
			cs.Balances = append(cs.Balances, Balance{
				Account:  common.BytesToAddress(suffix[:common.AddressLength]),
				SeriesID: binary.BigEndian.Uint64(suffix[common.AddressLength:]),
				Amount:   binary.BigEndian.Uint64(val),
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load balances: %w", err)
		}

		err = iteratePrefix(txn, prefixHandle, func(key, val []byte) error {
			var rec handleRecord
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return err
			}
			var h interfaces.Handle
			copy(h[:], rec.Handle)
			cs.Handles = append(cs.Handles, HandleRecord{
				SeriesID: binary.BigEndian.Uint64(key[len(prefixHandle):]),
				Handle:   h,
				SetBy:    common.BytesToAddress(rec.SetBy),
			})
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load handles: %w", err)
		}

		err = iteratePrefix(txn, prefixEvent, func(key, val []byte) error {
			var rec eventRecord
			if err := msgpack.Unmarshal(val, &rec); err != nil {
				return err
			}
			cs.Events = append(cs.Events, rec.event())
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}

		return nil
	})

	return cs, err
}

func iteratePrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func seriesKey(id uint64) []byte {
	return append([]byte(prefixSeries), uint64Bytes(id)...)
}

func balanceKeyBytes(account common.Address, id uint64) []byte {
	key := append([]byte(prefixBalance), account.Bytes()...)
	return append(key, uint64Bytes(id)...)
}

func handleKey(id uint64) []byte {
	return append([]byte(prefixHandle), uint64Bytes(id)...)
}

func eventKey(seq uint64) []byte {
	return append([]byte(prefixEvent), uint64Bytes(seq)...)
}

// badgerLogger routes badger's internal logging into slog.
type badgerLogger struct {
	log *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
