package main

import "github.com/nikogura/cv-tailor/cmd"

func main() {
	cmd.Execute()
}
