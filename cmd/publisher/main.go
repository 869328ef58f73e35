package main

import (
	"github.com/venuepost/publisher/internal/cli"
)

func main() {
	cli.Execute()
}
