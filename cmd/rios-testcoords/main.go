package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/twpayne/go-rios/internal/riostest"
)

func run() (bool, error) {
	dir := flag.String("dir", os.Getenv("RIOS_TEST_DIR"), "directory for temporary files")
	verbose := flag.Bool("v", false, "verbose")
	flag.Parse()

	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if *dir == "" {
		tempDir, err := os.MkdirTemp("", "rios-testcoords")
		if err != nil {
			return false, err
		}
		defer os.RemoveAll(tempDir)
		*dir = tempDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	r := riostest.NewReporter(os.Stdout)
	ok := riostest.RunCoords(ctx, *dir, r)
	r.ReportResult(riostest.TestCoordsName, ok)
	return ok, nil
}

func main() {
	ok, err := run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}
