package main

import "github.com/gosub/vpadmin/cmd"

func main() {
	cmd.Execute()
}
