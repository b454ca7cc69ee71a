package main

import (
	"testing"

	_ "github.com/kemosabixv/rcng-pwa-sub001/internal/testing/guard"
)

func TestMainSkipsInTestMode(t *testing.T) {
	main()
}
