package main

import "github.com/dangazineu/reposync/cmd/reposync/internal"

func main() {
	internal.Execute()
}
