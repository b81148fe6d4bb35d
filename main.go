// File: main.go
package main

import "github.com/xkilldash9x/extprobe-cli/cmd"

func main() {
	cmd.Execute()
}
