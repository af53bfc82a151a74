package main

import (
	"context"
	"os"

	"github.com/starsweep/imagesync/pkg/log"
)

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Failure(err.Error())
		os.Exit(1)
	}
}
