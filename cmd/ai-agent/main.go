package main

import "github.com/liaoxianfu/ai-agent/cmd/ai-agent/cmd"

func main() {
	cmd.Execute()
}
