package main

import (
	"os"

	"github.com/soundprediction/reconcile/cmd/reconcile"
)

func main() {
	if err := reconcile.Execute(); err != nil {
		os.Exit(1)
	}
}
