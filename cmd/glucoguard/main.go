package main

import "github.com/ogulcanaydogan/gluco-guardian/internal/cli"

func main() {
	cli.Execute()
}
