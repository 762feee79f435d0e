package main

import "github.com/frahmantamala/client-portal/cmd"

func main() {
	cmd.Execute()
}
