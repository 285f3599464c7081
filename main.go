/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/gmaffy/viral-ngs-dx/cmd"

func main() {
	cmd.Execute()
}
