package main

import "github.com/shaharia-lab/pushcast/cmd"

func main() {
	cmd.Execute()
}
