package main

import "github.com/MikaelWeiss/open-chat-core/cmd"

func main() {
	cmd.Execute()
}
