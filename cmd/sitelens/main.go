// Package main wires together the sitelens service binary.
package main

import "github.com/sitelens/sitelens/cmd"

func main() {
	cmd.Execute()
}
