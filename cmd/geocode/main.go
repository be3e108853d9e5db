package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"sjsage522/pricecrawler/config"
	"sjsage522/pricecrawler/logger"
	"sjsage522/pricecrawler/services/geocode"
)

func main() {
	envErr := config.LoadDotenv()
	logger.Init()
	if envErr != nil {
		logger.Debug("ignoring .env: %v", envErr)
	}

	cfg := config.LoadConfig()

	address := flag.String("address", "", "address to geocode")
	city := flag.String("city", "", "optional city scope")
	ak := flag.String("ak", cfg.GeocoderAK, "geocoder access key (defaults to GEOCODER_AK)")
	endpoint := flag.String("url", cfg.GeocoderURL, "geocoder endpoint (defaults to GEOCODER_URL)")
	timeout := flag.Duration("timeout", cfg.RequestTimeout, "request timeout")
	flag.Parse()

	if *address == "" && flag.NArg() > 0 {
		*address = flag.Arg(0)
	}
	if *address == "" {
		fmt.Fprintln(os.Stderr, "usage: geocode [-city CITY] -address ADDRESS")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*(*timeout)+5*time.Second)
	defer cancel()

	client := geocode.NewClient(*endpoint, *ak, *timeout)
	loc, err := client.Geocode(ctx, *address, *city)
	if err != nil {
		logger.Fatal("geocoding %q failed: %v", *address, err)
	}

	if !loc.Found() {
		fmt.Println("not found")
		return
	}
	fmt.Printf("lat=%.6f lng=%.6f geohash=%s\n", loc.Lat, loc.Lng, loc.Geohash())
}
