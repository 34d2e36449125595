// Command aptgate runs the Debian archive mirror proxy.
package main

import "github.com/Apt-Gate/Aptgate/cmd/aptgate/cmd"

func main() {
	cmd.Execute()
}
