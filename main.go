package main

import "github.com/RyanBlaney/antispoof-pipeline/cmd"

func main() {
	cmd.Execute()
}
