/*
Copyright © 2026 Michael Putera Wardana <michaelputeraw@gmail.com>
*/
package main

import "github.com/krobus00/futures-signal-executor/cmd"

func main() {
	cmd.Execute()
}
