package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/namsral/flag"
	"github.com/twpayne/go-geom/encoding/geojson"
)

var (
	insideURI = flag.String("insideURI", "http://localhost:9201", "inzoned HTTP API URI")
	lat       = flag.Float64("lat", 48.8, "Lat")
	lng       = flag.Float64("lng", 2.2, "Lng")
	count     = flag.Int("count", 1, "how many requests to perform")
)

func main() {
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	url := fmt.Sprintf("%s/api/within/%s/%s", *insideURI,
		strconv.FormatFloat(*lat, 'f', -1, 64),
		strconv.FormatFloat(*lng, 'f', -1, 64),
	)

	for i := 0; i < *count; i++ {
		resp, err := client.Get(url)
		if err != nil {
			log.Fatal(err)
		}

		if resp.StatusCode == http.StatusNotFound {
			log.Printf("no zone found at %v %v\n", *lat, *lng)
			resp.Body.Close()

			continue
		}
		if resp.StatusCode != http.StatusOK {
			log.Fatal("unexpected status ", resp.Status)
		}

		var fc geojson.FeatureCollection
		if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
			log.Fatal(err)
		}
		resp.Body.Close()

		for _, f := range fc.Features {
			log.Printf("Found in zone: %v properties: %v\n", f.Properties["zone_id"], f.Properties)
		}
	}
}
