package main

import "github.com/ACRONYM-Group/ACRONYM-Communications-Interface/cmd"

func main() {
	cmd.Execute()
}
