package main

import (
	"github.com/bikeshack/pducycle/cmd"
)

func main() {
	cmd.Execute()
}
