package main

import "github.com/notebookci/nbcheck/cmd"

func main() {
	cmd.Execute()
}
