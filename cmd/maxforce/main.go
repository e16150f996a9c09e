// Copyright (c) jupacheco1407.
// Licensed under the MIT License.

// Command maxforce measures the maximum force applied to a sensor over a short
// sampling window and keeps a history of the results.
package main

import "github.com/jupacheco1407/datacollector/cmd/maxforce/commands"

func main() {
	commands.Execute()
}
