package main

import (
	"github.com/visingers/visingers-sync/cmd"
)

func main() {
	cmd.Execute()
}
