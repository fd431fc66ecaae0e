package main

import "github.com/ValentinKolb/sMX/cmd"

func main() {
	cmd.Execute()
}
