package main

import "github.com/s8d76f867sdf876ds-dev/rustplusplus-jeff-tracker/internal/cli"

func main() {
	cli.Execute()
}
