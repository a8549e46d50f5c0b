package main

import "github.com/KaramelBytes/dropsight/cmd"

func main() {
	cmd.Execute()
}
