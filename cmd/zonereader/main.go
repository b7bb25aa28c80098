package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"runtime"

	kitlog "github.com/go-kit/kit/log"
	"github.com/namsral/flag"

	"github.com/shiplytics/inzone"
	"github.com/shiplytics/inzone/storage/badger"
	"github.com/shiplytics/inzone/storage/bbolt"
	"github.com/shiplytics/inzone/storage/leveldb"
)

var (
	dbPath         = flag.String("dbPath", "zones.db", "Database path")
	storageBackend = flag.String("storageBackend", "leveldb", "Storage backend: leveldb|bbolt|badger")
	lat            = flag.Float64("lat", 48.8, "lat to query")
	lng            = flag.Float64("lng", 2.2, "lng to query")
	dumpZones      = flag.Bool("dumpZones", false, "print every zone in the DB")
)

func main() {
	flag.Parse()

	go func() {
		log.Println(http.ListenAndServe("localhost:6060", nil))
	}()

	var (
		store inzone.Store
		clean func() error
		err   error
	)

	logger := kitlog.NewNopLogger()

	switch *storageBackend {
	case "bbolt":
		store, clean, err = bbolt.NewROStorage(*dbPath, logger)
	case "leveldb":
		store, clean, err = leveldb.NewROStorage(*dbPath, logger)
	case "badger":
		store, clean, err = badger.NewROStorage(*dbPath, logger)
	default:
		log.Fatal("unknown storage backend ", *storageBackend)
	}
	if err != nil {
		log.Fatal(err)
	}
	defer clean()

	infos, err := store.LoadIndexInfos()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(infos)

	engine, err := inzone.NewEngineFromStore(store, inzone.Options{})
	if err != nil {
		log.Fatal(err)
	}

	if *dumpZones {
		for id := int32(0); int(id) < engine.Len(); id++ {
			z, _ := engine.Zone(id)
			log.Println("zone", id, z.Properties)
		}
	}

	id := engine.Query(*lat, *lng)
	if id == inzone.NoMatch {
		log.Println("no zone found at", *lat, *lng)
	} else {
		z, _ := engine.Zone(id)
		log.Println("found zone", id, z.Properties)
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	fmt.Printf("Alloc = %v MiB", bToMb(m.Alloc))
	fmt.Printf("\tTotalAlloc = %v MiB", bToMb(m.TotalAlloc))
	fmt.Printf("\tSys = %v MiB", bToMb(m.Sys))
	fmt.Printf("\tNumGC = %v\n", m.NumGC)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
