package badger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/dgraph-io/badger/options"
	"github.com/fxamacker/cbor"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/shiplytics/inzone"
)

var (
	zoneStoragePool = sync.Pool{
		New: func() interface{} {
			return &inzone.ZoneStorage{}
		},
	}
)

// Storage cold storage
type Storage struct {
	*badger.DB
	logger log.Logger
}

// NewStorage returns a cold storage using badger
func NewStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	opts := badger.LSMOnlyOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, err
	}

	return &Storage{
		DB:     db,
		logger: logger,
	}, db.Close, nil
}

// NewROStorage returns a read only storage using badger
func NewROStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	opts := badger.LSMOnlyOptions(path)
	opts.ValueLogLoadingMode = options.FileIO
	opts.ReadOnly = true
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open DB for reading at %s: %w", path, err)
	}

	return &Storage{
		DB:     db,
		logger: logger,
	}, db.Close, nil
}

// Index writes one zone per feature into the DB, zone ids follow the
// feature order. The whole write happens in one transaction so a bad
// feature leaves no partial index behind.
func (s *Storage) Index(fc *geojson.FeatureCollection, fileName, version string) error {
	if len(fc.Features) > math.MaxInt32 {
		return fmt.Errorf("too many features to index: %d", len(fc.Features))
	}

	err := s.Update(func(txn *badger.Txn) error {
		for i, f := range fc.Features {
			z, err := inzone.ZoneFromFeature(f)
			if err != nil {
				return fmt.Errorf("invalid feature %d: %w", i, err)
			}

			b := new(bytes.Buffer)
			enc := cbor.NewEncoder(b, cbor.CanonicalEncOptions())
			if err := enc.Encode(z.Storage()); err != nil {
				return fmt.Errorf("can't encode ZoneStorage: %w", err)
			}

			if err := txn.Set(inzone.ZoneKey(uint32(i)), b.Bytes()); err != nil {
				return fmt.Errorf("failed to store zone into DB: %w", err)
			}

			level.Debug(s.logger).Log("msg", "stored zone", "zone_id", i)
		}

		infos := &inzone.IndexInfos{
			Filename:       fileName,
			IndexTime:      time.Now(),
			IndexerVersion: version,
			ZoneCount:      uint32(len(fc.Features)),
		}

		b := new(bytes.Buffer)
		enc := cbor.NewEncoder(b, cbor.CanonicalEncOptions())
		if err := enc.Encode(infos); err != nil {
			return fmt.Errorf("failed encoding IndexInfos: %w", err)
		}

		return txn.Set(inzone.InfoKey(), b.Bytes())
	})
	if err != nil {
		return fmt.Errorf("failed to index zones: %w", err)
	}

	return nil
}

// LoadZone loads one zone from the DB
func (s *Storage) LoadZone(id uint32) (*inzone.Zone, error) {
	zs := &inzone.ZoneStorage{}
	err := s.View(func(txn *badger.Txn) error {
		item, err := txn.Get(inzone.ZoneKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("zone id not found: %d", id)
			}
			return err
		}
		return item.Value(func(v []byte) error {
			dec := cbor.NewDecoder(bytes.NewReader(v))
			return dec.Decode(zs)
		})
	})
	if err != nil {
		return nil, err
	}

	return zs.Zone()
}

// LoadAllZones loads ZoneStorage from DB into add, in zone id order
func (s *Storage) LoadAllZones(add func(*inzone.ZoneStorage, uint32) error) error {
	err := s.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 100
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{inzone.ZonePrefix()}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			id := binary.BigEndian.Uint32(key[1:])

			err := item.Value(func(v []byte) error {
				dec := cbor.NewDecoder(bytes.NewReader(v))
				zs := zoneStoragePool.Get().(*inzone.ZoneStorage)
				// decoding merges into an existing map, clear the recycled struct
				*zs = inzone.ZoneStorage{}
				if err := dec.Decode(zs); err != nil {
					zoneStoragePool.Put(zs)
					return err
				}

				if err := add(zs, id); err != nil {
					zoneStoragePool.Put(zs)
					return err
				}
				zoneStoragePool.Put(zs)
				return nil
			})
			if err != nil {
				return err
			}
		}

		return nil
	})

	return err
}

// LoadIndexInfos loads index infos from the DB
func (s *Storage) LoadIndexInfos() (*inzone.IndexInfos, error) {
	var b []byte
	err := s.View(func(txn *badger.Txn) error {
		item, err := txn.Get(inzone.InfoKey())
		if err != nil {
			return err
		}
		b, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, errors.New("can't find infos entries, invalid DB")
		}
		return nil, err
	}

	dec := cbor.NewDecoder(bytes.NewReader(b))
	infos := &inzone.IndexInfos{}
	if err = dec.Decode(infos); err != nil {
		return nil, err
	}

	return infos, nil
}
