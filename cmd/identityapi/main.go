package main

import "github.com/keepitup/magjob/identityapi/cmd/identityapi/cmd"

func main() {
	cmd.Execute()
}
