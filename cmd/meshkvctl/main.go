// Command meshkvctl is a thin operator CLI over the meshkv request
// engine, the way the teacher ships its own daemon's cli package behind a
// one-line main.
package main

import "github.com/meshkv/meshkv/cli"

func main() {
	cli.Run()
}
