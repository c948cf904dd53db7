package main

import "github.com/crmkit/email-gateway/cmd"

func main() {
	cmd.Execute()
}
