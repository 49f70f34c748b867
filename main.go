package main

import "github.com/bigjimnolan/onvifbridge/cmd"

func main() {
	cmd.Execute()
}
