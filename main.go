package main

import cmd "github.com/webitel/batch-sync/cmd/main"

func main() {
	cmd.Run()
}
