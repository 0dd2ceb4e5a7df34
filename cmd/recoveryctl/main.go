// Command recoveryctl is the RecoveryHub operator CLI.
package main

import "github.com/dalemusser/recoveryhub/internal/ctl"

func main() {
	ctl.Execute()
}
