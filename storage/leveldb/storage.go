package leveldb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/fxamacker/cbor"
	log "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
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
	*leveldb.DB
	logger log.Logger
}

// NewStorage returns a cold storage using leveldb
func NewStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	o := &opt.Options{
		Filter: filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to created DB at %s: %w", path, err)
	}

	return &Storage{
		DB:     db,
		logger: logger,
	}, db.Close, nil
}

// NewROStorage returns a read only storage using leveldb
func NewROStorage(path string, logger log.Logger) (*Storage, func() error, error) {
	// Creating DB
	o := &opt.Options{
		Filter:   filter.NewBloomFilter(10),
		ReadOnly: true,
	}
	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open DB for reading at %s: %w", path, err)
	}

	return &Storage{
		DB:     db,
		logger: logger,
	}, db.Close, nil
}

// Index writes one zone per feature into the DB, zone ids follow the
// feature order. The batch is applied in one write so a bad feature
// leaves no partial index behind.
func (s *Storage) Index(fc *geojson.FeatureCollection, fileName, version string) error {
	if len(fc.Features) > math.MaxInt32 {
		return fmt.Errorf("too many features to index: %d", len(fc.Features))
	}

	batch := new(leveldb.Batch)

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

		batch.Put(inzone.ZoneKey(uint32(i)), b.Bytes())

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
	batch.Put(inzone.InfoKey(), b.Bytes())

	if err := s.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to index zones: %w", err)
	}

	return nil
}

// LoadZone loads one zone from the DB
func (s *Storage) LoadZone(id uint32) (*inzone.Zone, error) {
	k := inzone.ZoneKey(id)
	v, err := s.Get(k, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, fmt.Errorf("zone id not found: %d", id)
		}
		return nil, err
	}

	dec := cbor.NewDecoder(bytes.NewReader(v))
	zs := &inzone.ZoneStorage{}
	if err = dec.Decode(zs); err != nil {
		return nil, err
	}

	return zs.Zone()
}

// LoadAllZones loads ZoneStorage from DB into add, in zone id order
func (s *Storage) LoadAllZones(add func(*inzone.ZoneStorage, uint32) error) error {
	iter := s.NewIterator(util.BytesPrefix([]byte{inzone.ZonePrefix()}), &opt.ReadOptions{
		DontFillCache: true,
	})
	for iter.Next() {
		// read back ZoneStorage
		key := iter.Key()
		id := binary.BigEndian.Uint32(key[1:])
		v := iter.Value()
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
	}
	iter.Release()
	return iter.Error()
}

// LoadIndexInfos loads index infos from the DB
func (s *Storage) LoadIndexInfos() (*inzone.IndexInfos, error) {
	v, err := s.Get(inzone.InfoKey(), &opt.ReadOptions{
		DontFillCache: true,
	})
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, errors.New("can't find infos entries, invalid DB")
		}
		return nil, err
	}
	dec := cbor.NewDecoder(bytes.NewReader(v))
	infos := &inzone.IndexInfos{}
	if err = dec.Decode(infos); err != nil {
		return nil, err
	}

	return infos, nil
}
