package main

import (
	"fmt"
	"os"
)

var version = "dev"

const usage = `faceenhancer %s

Usage:
  faceenhancer serve                 run the HTTP service
  faceenhancer enhance -i IN -o OUT  enhance a file, or a directory with -batch

Run "faceenhancer enhance -h" for enhancement flags. Service settings are
read from the environment and an optional .env file.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, version)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "enhance":
		var code int
		code, err = runEnhance(os.Args[2:])
		if err == nil {
			os.Exit(code)
		}
	case "version":
		fmt.Println(version)
		return
	case "-h", "--help", "help":
		fmt.Fprintf(os.Stdout, usage, version)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		fmt.Fprintf(os.Stderr, usage, version)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "faceenhancer: %v\n", err)
		os.Exit(1)
	}
}
